package backend

// SubtopicStatus is the learner's standing on a subtopic.
type SubtopicStatus string

const (
	StatusAvailable  SubtopicStatus = "available"
	StatusInProgress SubtopicStatus = "in-progress"
	StatusCompleted  SubtopicStatus = "completed"
	StatusLocked     SubtopicStatus = "locked"
)

// Subtopic is one lesson.
type Subtopic struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Score    float64        `json:"score"`
	Position int            `json:"position"`
	Status   SubtopicStatus `json:"status"`
}

// Module groups subtopics.
type Module struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Position  int        `json:"position"`
	Subtopics []Subtopic `json:"subtopics"`
}

// Curriculum is the payload of GET /api/curriculum.
type Curriculum struct {
	Modules []Module `json:"modules"`
}

// Subtopic returns the subtopic with id, searching every module.
func (c *Curriculum) Subtopic(id string) (Subtopic, bool) {
	for _, m := range c.Modules {
		for _, s := range m.Subtopics {
			if s.ID == id {
				return s, true
			}
		}
	}
	return Subtopic{}, false
}

// NextAvailable returns the first subtopic that is neither completed nor
// locked, in module then subtopic order.
func (c *Curriculum) NextAvailable() (Subtopic, bool) {
	for _, m := range c.Modules {
		for _, s := range m.Subtopics {
			if s.Status == StatusAvailable || s.Status == StatusInProgress {
				return s, true
			}
		}
	}
	return Subtopic{}, false
}

// Lessons returns every subtopic in module then subtopic order.
func (c *Curriculum) Lessons() []Subtopic {
	var out []Subtopic
	for _, m := range c.Modules {
		out = append(out, m.Subtopics...)
	}
	return out
}

// Score is the body of POST /api/attempts/score.
type Score struct {
	UserID     string `json:"user_id"`
	SubtopicID string `json:"subtopic_id"`
	FinalScore int    `json:"final_score"`
}

type chatRequest struct {
	Message string `json:"message"`
	Context string `json:"context"`
}

type userRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
