package forumdata

import (
	"context"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/perf"
)

// The whole tree is small enough to read in one go, and visibility depends on
// parents anyway, so filtering happens in Go rather than SQL.
func fetchCategoryTree(ctx context.Context, conn db.ConnOrTx) ([]*models.Category, error) {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("SQL", "Fetch category tree")
	defer block.End()

	cats, err := db.Query[models.Category](ctx, conn,
		`
		---- Fetch category tree
		SELECT $columns
		FROM category
		ORDER BY sort_order, title, id
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch categories")
	}

	restrictions, err := db.Query[models.CategoryRestriction](ctx, conn,
		`
		---- Fetch category restrictions
		SELECT $columns
		FROM category_restriction
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch category restrictions")
	}

	LinkCategories(cats, restrictions)
	return cats, nil
}

// LinkCategories fills in Parent and Restrictions on every category.
func LinkCategories(cats []*models.Category, restrictions []*models.CategoryRestriction) {
	byID := make(map[int]*models.Category, len(cats))
	for _, c := range cats {
		c.Restrictions = models.CategoryRestrictions{}
		byID[c.ID] = c
	}
	for _, c := range cats {
		if c.ParentID != nil {
			c.Parent = byID[*c.ParentID]
		}
	}
	for _, r := range restrictions {
		if c, ok := byID[r.CategoryID]; ok {
			c.Restrictions.Add(r.Kind, r.GroupID)
		}
	}
}

func (a *Access) categoryTree(ctx context.Context, conn db.ConnOrTx) ([]*models.Category, error) {
	a.treeMu.Lock()
	defer a.treeMu.Unlock()

	if a.tree == nil {
		tree, err := fetchCategoryTree(ctx, conn)
		if err != nil {
			return nil, err
		}
		a.tree = tree
	}
	return a.tree, nil
}

// Forces the next fetch to re-read the tree, e.g. after a category changes
// within the same request.
func (a *Access) ResetCategories() {
	a.treeMu.Lock()
	defer a.treeMu.Unlock()
	a.tree = nil
}

// FetchCategories returns the categories the requester can see, narrowed by any
// extra filters, in display order.
func FetchCategories(ctx context.Context, conn db.ConnOrTx, access *Access, filters ...CategoryFilter) ([]*models.Category, error) {
	tree, err := access.categoryTree(ctx, conn)
	if err != nil {
		return nil, err
	}
	return access.Filter(tree, append([]CategoryFilter{Visible}, filters...)...), nil
}

// Returns db.NotFound if the category does not exist or does not pass the filters.
func FetchCategory(ctx context.Context, conn db.ConnOrTx, access *Access, id int, filters ...CategoryFilter) (*models.Category, error) {
	cats, err := FetchCategories(ctx, conn, access, filters...)
	if err != nil {
		return nil, err
	}
	for _, c := range cats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, db.NotFound
}

// Children returns the direct subcategories of parent among cats.
func Children(cats []*models.Category, parent *models.Category) []*models.Category {
	var result []*models.Category
	for _, c := range cats {
		if c.ParentID != nil && *c.ParentID == parent.ID {
			result = append(result, c)
		}
	}
	return result
}

func categoryMap(cats []*models.Category) map[int]*models.Category {
	result := make(map[int]*models.Category, len(cats))
	for _, c := range cats {
		result[c.ID] = c
	}
	return result
}

func bumpCategoryReindex(ctx context.Context, tx db.ConnOrTx, categoryIDs ...int) error {
	_, err := tx.Exec(ctx,
		`
		---- Bump category reindex
		UPDATE category
		SET reindex_at = NOW()
		WHERE id = ANY($1)
		`,
		categoryIDs,
	)
	if err != nil {
		return oops.New(err, "failed to bump category reindex time")
	}
	return nil
}

// Looks a category up in the full tree, ignoring visibility.
func (a *Access) lookupCategory(ctx context.Context, conn db.ConnOrTx, id int) (*models.Category, error) {
	tree, err := a.categoryTree(ctx, conn)
	if err != nil {
		return nil, err
	}
	for _, c := range tree {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, db.NotFound
}
