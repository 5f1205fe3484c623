package catalog

// Category is the "one" side of the catalog relation. ItemCount is owned by
// the count-cache engine and Position by the order engine; nothing else
// writes those columns. The unique index on slug is the last-resort safety
// net behind the resolver's proactive uniqueness check.
type Category struct {
	ID        string `gorm:"column:id;primaryKey;size:36"`
	Name      string `gorm:"column:name;size:190;not null"`
	Slug      string `gorm:"column:slug;size:80;not null;uniqueIndex:idx_categories_sluggable"`
	ItemCount int64  `gorm:"column:item_count;not null;default:0"`
	Position  int64  `gorm:"column:position;not null;default:0;index:idx_categories_sortable"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Item belongs to a category. Slugs are unique per category, so the backing
// unique index spans the slug and its scope column.
type Item struct {
	ID         string  `gorm:"column:id;primaryKey;size:36"`
	CategoryID *string `gorm:"column:category_id;size:36;index;uniqueIndex:idx_items_sluggable,priority:2"`
	Title      string  `gorm:"column:title;size:190;not null"`
	Summary    string  `gorm:"column:summary;type:text"`
	Slug       string  `gorm:"column:slug;size:120;not null;uniqueIndex:idx_items_sluggable,priority:1"`
}

// TableName provides the explicit table binding for GORM.
func (Item) TableName() string {
	return "items"
}
