package domain

// Task is a single user-authored item. Owner and visibility are fixed at
// creation; there is no update path.
type Task struct {
	ID       string `json:"id"`
	Text     string `json:"task"`
	Owner    string `json:"user"`
	Public   bool   `json:"public"`
	Created  int64  `json:"created"`
	ShareURL string `json:"shareUrl,omitempty"`
}

// ShareLink builds the public link for a task id.
func ShareLink(baseURL, taskID string) string {
	return baseURL + "/task/" + taskID
}

// AttachShareURLs fills ShareURL on every public task in the list. Private
// tasks never carry a link. No-op when no base URL is configured.
func AttachShareURLs(tasks []Task, baseURL string) []Task {
	if baseURL == "" {
		return tasks
	}
	for i := range tasks {
		if tasks[i].Public {
			tasks[i].ShareURL = ShareLink(baseURL, tasks[i].ID)
		}
	}
	return tasks
}
