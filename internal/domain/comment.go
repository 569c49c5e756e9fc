package domain

import "time"

// Comment is an append-only entry in a ticket thread. Internal comments are
// visible to agents and admins only.
type Comment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// PublicComments drops internal comments, preserving order.
func PublicComments(comments []Comment) []Comment {
	filtered := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.IsInternal {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}
