package domain

// Comment is a reply attached to one public task.
type Comment struct {
	ID         string `json:"id"`
	TaskID     string `json:"taskId"`
	Text       string `json:"comment"`
	Author     string `json:"user"`
	AuthorName string `json:"name"`
}
