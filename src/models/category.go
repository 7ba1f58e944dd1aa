package models

import "time"

type Category struct {
	ID int `db:"id"`

	ParentID *int `db:"parent_id"`

	Title       string `db:"title"`
	Slug        string `db:"slug"`
	Description string `db:"description"`
	Color       string `db:"color"`
	SortOrder   int    `db:"sort_order"`

	IsGlobal  bool `db:"is_global"`
	IsClosed  bool `db:"is_closed"`
	IsRemoved bool `db:"is_removed"`
	IsPrivate bool `db:"is_private"`

	// Bumped whenever content in the category changes in a way search cares
	// about. Generic updates to the row must leave it alone.
	ReindexAt time.Time `db:"reindex_at"`

	// Non-db fields, to be filled in by fetch helpers
	Parent       *Category
	Restrictions CategoryRestrictions
}

func (c *Category) IsSubcategory() bool {
	return c.ParentID != nil
}

func (c *Category) DisplayTitle() string {
	if c.Parent != nil {
		return c.Parent.Title + " / " + c.Title
	}
	return c.Title
}

type RestrictionKind int

const (
	RestrictAccess RestrictionKind = iota + 1
	RestrictTopic
	RestrictComment
)

type CategoryRestriction struct {
	CategoryID int             `db:"category_id"`
	GroupID    int             `db:"group_id"`
	Kind       RestrictionKind `db:"kind"`
}

// Group ids allowed to do each thing in a category. An empty list means
// nobody is restricted.
type CategoryRestrictions struct {
	Access  []int
	Topic   []int
	Comment []int
}

func (r *CategoryRestrictions) Add(kind RestrictionKind, groupID int) {
	switch kind {
	case RestrictAccess:
		r.Access = append(r.Access, groupID)
	case RestrictTopic:
		r.Topic = append(r.Topic, groupID)
	case RestrictComment:
		r.Comment = append(r.Comment, groupID)
	}
}

func (r *CategoryRestrictions) For(kind RestrictionKind) []int {
	switch kind {
	case RestrictAccess:
		return r.Access
	case RestrictTopic:
		return r.Topic
	case RestrictComment:
		return r.Comment
	}
	return nil
}
