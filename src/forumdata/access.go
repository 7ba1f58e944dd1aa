package forumdata

import (
	"context"
	"sync"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

/*
Access is everything needed to decide what a requester may see: who they are
and which groups they belong to. Every fetcher in this package takes one.

The category tree is loaded lazily, once per Access, so a request that runs
several queries only reads it a single time.
*/
type Access struct {
	User     *models.User
	GroupIDs []int

	groups map[int]bool

	treeMu sync.Mutex
	tree   []*models.Category
}

func NewAccess(user *models.User, groupIDs []int) *Access {
	groups := make(map[int]bool, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = true
	}
	return &Access{
		User:     user,
		GroupIDs: groupIDs,
		groups:   groups,
	}
}

// NewAccessWithCategories skips the database for the category tree. Meant for
// callers that already have it, and tests.
func NewAccessWithCategories(user *models.User, groupIDs []int, tree []*models.Category) *Access {
	a := NewAccess(user, groupIDs)
	a.tree = tree
	return a
}

func LoadAccess(ctx context.Context, conn db.ConnOrTx, user *models.User) (*Access, error) {
	if user == nil {
		return NewAccess(nil, nil), nil
	}

	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Fetch user groups")
	defer block.End()

	groupIDs, err := db.QueryScalar[int](ctx, conn,
		`
		---- Fetch user groups
		SELECT group_id
		FROM user_group
		WHERE user_id = $1
		`,
		user.ID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch groups for user")
	}

	return NewAccess(user, groupIDs), nil
}

func (a *Access) UserID() int {
	if a.User == nil {
		return 0
	}
	return a.User.ID
}

func (a *Access) IsAuthenticated() bool {
	return a.User.IsAuthenticated()
}

func (a *Access) CanModerate() bool {
	return a.User.CanModerate()
}

func (a *Access) isStaff() bool {
	return a.User != nil && a.User.IsStaff
}

func (a *Access) memberOfAny(groupIDs []int) bool {
	for _, id := range groupIDs {
		if a.groups[id] {
			return true
		}
	}
	return false
}

// An empty group list means the category is not restricted.
func (a *Access) allowedBy(groupIDs []int) bool {
	return len(groupIDs) == 0 || a.isStaff() || a.memberOfAny(groupIDs)
}

// A CategoryFilter keeps the categories it returns true for. Filters are pure,
// so filtering twice gives the same result as filtering once.
type CategoryFilter func(a *Access, c *models.Category) bool

func Visible(a *Access, c *models.Category) bool {
	if c.Parent != nil && !Visible(a, c.Parent) {
		return false
	}
	if c.IsRemoved && !a.CanModerate() {
		return false
	}
	// Private categories without an access list are staff-only.
	if c.IsPrivate && !a.isStaff() && !a.memberOfAny(c.Restrictions.Access) {
		return false
	}
	return a.allowedBy(c.Restrictions.Access)
}

func Unremoved(a *Access, c *models.Category) bool {
	return !c.IsRemoved && (c.Parent == nil || Unremoved(a, c.Parent))
}

func open(c *models.Category) bool {
	return !c.IsClosed && (c.Parent == nil || open(c.Parent))
}

func CanComment(a *Access, c *models.Category) bool {
	return a.IsAuthenticated() &&
		Visible(a, c) &&
		Unremoved(a, c) &&
		open(c) &&
		a.allowedBy(c.Restrictions.Comment)
}

func CanCreateTopic(a *Access, c *models.Category) bool {
	return CanComment(a, c) && a.allowedBy(c.Restrictions.Topic)
}

func ParentsOnly(a *Access, c *models.Category) bool {
	return c.ParentID == nil
}

func GlobalOnly(a *Access, c *models.Category) bool {
	return c.IsGlobal
}

// Filter returns the categories that pass every filter, keeping their order.
func (a *Access) Filter(cats []*models.Category, filters ...CategoryFilter) []*models.Category {
	result := make([]*models.Category, 0, len(cats))
outer:
	for _, c := range cats {
		for _, f := range filters {
			if !f(a, c) {
				continue outer
			}
		}
		result = append(result, c)
	}
	return result
}

func (a *Access) Allows(c *models.Category, filters ...CategoryFilter) bool {
	return len(a.Filter([]*models.Category{c}, filters...)) == 1
}

// CanSeeTopic assumes the category is already known to be visible.
func (a *Access) CanSeeTopic(t *models.Topic) bool {
	return !t.IsRemoved || a.CanModerate()
}

func (a *Access) CanCommentOnTopic(t *models.Topic, c *models.Category) bool {
	return !t.IsClosed && !t.IsRemoved && CanComment(a, c)
}

// Owners may edit their own comments and topics; moderators may edit anything.
func (a *Access) CanEdit(ownerID int) bool {
	if a.CanModerate() {
		return true
	}
	return a.IsAuthenticated() && a.User.ID == ownerID
}

func ids(cats []*models.Category) []int {
	result := make([]int, len(cats))
	for i, c := range cats {
		result[i] = c.ID
	}
	return result
}
