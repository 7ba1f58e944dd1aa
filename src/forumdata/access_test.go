package forumdata

import (
	"testing"

	"git.handmade.network/hmn/forum/src/models"
	"github.com/stretchr/testify/assert"
)

const testMembersGroup = 7

func testTree() []*models.Category {
	parentID := 1
	privateID := 4
	cats := []*models.Category{
		{ID: 1, Title: "General", IsGlobal: true},
		{ID: 2, Title: "Help", ParentID: &parentID, IsGlobal: true},
		{ID: 3, Title: "Archive", IsClosed: true, IsGlobal: true},
		{ID: 4, Title: "Members", IsPrivate: true},
		{ID: 5, Title: "Members Chat", ParentID: &privateID},
		{ID: 6, Title: "Trash", IsRemoved: true},
		{ID: 7, Title: "Announcements"},
	}
	LinkCategories(cats, []*models.CategoryRestriction{
		{CategoryID: 4, GroupID: testMembersGroup, Kind: models.RestrictAccess},
		{CategoryID: 7, GroupID: testMembersGroup, Kind: models.RestrictTopic},
	})
	return cats
}

func categoryIDs(cats []*models.Category) []int {
	return ids(cats)
}

func TestVisible(t *testing.T) {
	regular := &models.User{ID: 10, Username: "regular"}
	member := &models.User{ID: 11, Username: "member"}
	moderator := &models.User{ID: 12, Username: "mod", IsModerator: true}
	staff := &models.User{ID: 13, Username: "staff", IsStaff: true}

	tests := []struct {
		name     string
		access   *Access
		expected []int
	}{
		{"anonymous", NewAccess(nil, nil), []int{1, 2, 3, 7}},
		{"regular user", NewAccess(regular, nil), []int{1, 2, 3, 7}},
		{"group member", NewAccess(member, []int{testMembersGroup}), []int{1, 2, 3, 4, 5, 7}},
		{"moderator sees removed", NewAccess(moderator, nil), []int{1, 2, 3, 6, 7}},
		{"staff sees everything", NewAccess(staff, nil), []int{1, 2, 3, 4, 5, 6, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryIDs(tt.access.Filter(testTree(), Visible)))
		})
	}
}

func TestPrivateWithoutAccessListIsStaffOnly(t *testing.T) {
	cats := []*models.Category{{ID: 1, IsPrivate: true}}
	LinkCategories(cats, nil)

	assert.Empty(t, NewAccess(&models.User{ID: 1}, []int{1, 2, 3}).Filter(cats, Visible))
	assert.Len(t, NewAccess(&models.User{ID: 1, IsStaff: true}, nil).Filter(cats, Visible), 1)
}

func TestCanCommentAndCreate(t *testing.T) {
	user := &models.User{ID: 10}
	member := &models.User{ID: 11}
	moderator := &models.User{ID: 12, IsModerator: true}

	t.Run("anonymous users cannot comment anywhere", func(t *testing.T) {
		assert.Empty(t, NewAccess(nil, nil).Filter(testTree(), CanComment))
	})
	t.Run("closed and removed categories are excluded", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 7}, categoryIDs(NewAccess(user, nil).Filter(testTree(), CanComment)))
		assert.Equal(t, []int{1, 2, 7}, categoryIDs(NewAccess(moderator, nil).Filter(testTree(), CanComment)))
	})
	t.Run("topic restrictions", func(t *testing.T) {
		assert.Equal(t, []int{1, 2}, categoryIDs(NewAccess(user, nil).Filter(testTree(), CanCreateTopic)))
		assert.Equal(t, []int{1, 2, 4, 5, 7}, categoryIDs(NewAccess(member, []int{testMembersGroup}).Filter(testTree(), CanCreateTopic)))
	})
	t.Run("subcategory of a closed category is closed", func(t *testing.T) {
		closedID := 1
		cats := []*models.Category{
			{ID: 1, IsClosed: true},
			{ID: 2, ParentID: &closedID},
		}
		LinkCategories(cats, nil)
		assert.Empty(t, NewAccess(user, nil).Filter(cats, CanComment))
	})
}

func TestFilterComposition(t *testing.T) {
	access := NewAccess(&models.User{ID: 1}, nil)

	t.Run("empty in, empty out", func(t *testing.T) {
		assert.Empty(t, access.Filter(nil, Visible, CanComment, ParentsOnly, GlobalOnly))
		assert.Empty(t, access.Filter([]*models.Category{}, Visible))
	})
	t.Run("filtering twice equals filtering once", func(t *testing.T) {
		filters := [][]CategoryFilter{
			{Visible},
			{CanComment},
			{CanCreateTopic},
			{ParentsOnly},
			{GlobalOnly},
			{Unremoved},
			{Visible, GlobalOnly, ParentsOnly},
		}
		for _, f := range filters {
			once := access.Filter(testTree(), f...)
			tree := testTree()
			twice := access.Filter(access.Filter(tree, f...), f...)
			assert.Equal(t, categoryIDs(once), categoryIDs(twice))
		}
	})
	t.Run("parents only", func(t *testing.T) {
		assert.Equal(t, []int{1, 3, 7}, categoryIDs(access.Filter(testTree(), Visible, ParentsOnly)))
	})
	t.Run("global only", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3}, categoryIDs(access.Filter(testTree(), Visible, GlobalOnly)))
	})
	t.Run("order is kept", func(t *testing.T) {
		tree := testTree()
		reversed := []*models.Category{tree[2], tree[1], tree[0]}
		assert.Equal(t, []int{3, 2, 1}, categoryIDs(access.Filter(reversed, Visible)))
	})
}

func TestSubcategoryHiddenWithParent(t *testing.T) {
	tree := testTree()
	access := NewAccess(&models.User{ID: 1}, nil)
	members := tree[4]

	assert.False(t, access.Allows(members, Visible))
	assert.True(t, NewAccess(&models.User{ID: 1}, []int{testMembersGroup}).Allows(members, Visible))
}

func TestTopicPermissions(t *testing.T) {
	tree := testTree()
	general := tree[0]
	owner := &models.User{ID: 5}
	other := &models.User{ID: 6}
	moderator := &models.User{ID: 7, IsModerator: true}

	removed := &models.Topic{ID: 1, UserID: owner.ID, IsRemoved: true}
	closed := &models.Topic{ID: 2, UserID: owner.ID, IsClosed: true}
	normal := &models.Topic{ID: 3, UserID: owner.ID}

	assert.False(t, NewAccess(owner, nil).CanSeeTopic(removed))
	assert.True(t, NewAccess(moderator, nil).CanSeeTopic(removed))

	assert.True(t, NewAccess(other, nil).CanCommentOnTopic(normal, general))
	assert.False(t, NewAccess(other, nil).CanCommentOnTopic(closed, general))
	assert.False(t, NewAccess(moderator, nil).CanCommentOnTopic(removed, general))
	assert.False(t, NewAccess(nil, nil).CanCommentOnTopic(normal, general))

	assert.True(t, NewAccess(owner, nil).CanEdit(owner.ID))
	assert.False(t, NewAccess(other, nil).CanEdit(owner.ID))
	assert.True(t, NewAccess(moderator, nil).CanEdit(owner.ID))
	assert.False(t, NewAccess(nil, nil).CanEdit(0))
}

func TestChildren(t *testing.T) {
	tree := testTree()
	assert.Equal(t, []int{2}, categoryIDs(Children(tree, tree[0])))
	assert.Empty(t, Children(tree, tree[2]))
}

func TestLinkCategories(t *testing.T) {
	tree := testTree()
	assert.Same(t, tree[0], tree[1].Parent)
	assert.Equal(t, "General / Help", tree[1].DisplayTitle())
	assert.Equal(t, []int{testMembersGroup}, tree[3].Restrictions.Access)
	assert.Equal(t, []int{testMembersGroup}, tree[6].Restrictions.Topic)
}
