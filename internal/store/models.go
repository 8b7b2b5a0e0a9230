package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dgallion1/quizpack/internal/doctree"
)

// NewID returns a fresh primary key. Callers that link entities before the
// first flush assign ids up front.
func NewID() string { return uuid.NewString() }

// Package is a persisted trivia package.
type Package struct {
	ID             string                `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID        string                `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Title          string                `gorm:"not null" json:"title"`
	Description    string                `json:"description,omitempty"`
	Preamble       string                `json:"preamble,omitempty"`
	SourceURL      string                `json:"source_url,omitempty"`
	PlayedFrom     *time.Time            `json:"played_from,omitempty"`
	PlayedTo       *time.Time            `json:"played_to,omitempty"`
	SharedEditors  bool                  `gorm:"not null;default:false" json:"shared_editors"`
	NumberingMode  doctree.NumberingMode `gorm:"type:varchar(16);not null;default:Global" json:"numbering_mode"`
	TotalQuestions int                   `gorm:"not null;default:0" json:"total_questions"`
	Editors        []*Author             `gorm:"many2many:package_editors" json:"editors,omitempty"`
	Tags           []*Tag                `gorm:"many2many:package_tags" json:"tags,omitempty"`
	Tours          []*Tour               `json:"tours"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Tour belongs to a package. Questions holds every question of the tour,
// including those that belong to a block.
type Tour struct {
	ID         string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	PackageID  string           `gorm:"type:varchar(36);not null;index" json:"package_id"`
	Number     string           `gorm:"type:varchar(16);not null" json:"number"`
	Type       doctree.TourType `gorm:"type:varchar(16);not null;default:regular" json:"type"`
	OrderIndex int              `gorm:"not null" json:"order_index"`
	Preamble   string           `json:"preamble,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	Editors    []*Author        `gorm:"many2many:tour_editors" json:"editors,omitempty"`
	Blocks     []*Block         `json:"blocks,omitempty"`
	Questions  []*Question      `json:"questions"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Block is an optional named group of questions inside a tour.
type Block struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TourID     string    `gorm:"type:varchar(36);not null;index" json:"tour_id"`
	Name       string    `json:"name"`
	OrderIndex int       `gorm:"not null" json:"order_index"`
	Preamble   string    `json:"preamble,omitempty"`
	Editors    []*Author `gorm:"many2many:block_editors" json:"editors,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Question is one question. OrderIndex is dense across the whole tour;
// BlockID is nil for questions outside any block.
type Question struct {
	ID                   string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TourID               string    `gorm:"type:varchar(36);not null;index" json:"tour_id"`
	BlockID              *string   `gorm:"type:varchar(36);index" json:"block_id,omitempty"`
	Number               string    `gorm:"type:varchar(16);not null" json:"number"`
	OrderIndex           int       `gorm:"not null" json:"order_index"`
	Text                 string    `json:"text"`
	Answer               string    `json:"answer"`
	AcceptedAnswers      string    `json:"accepted_answers,omitempty"`
	RejectedAnswers      string    `json:"rejected_answers,omitempty"`
	Comment              string    `json:"comment,omitempty"`
	Source               string    `json:"source,omitempty"`
	HostInstructions     string    `json:"host_instructions,omitempty"`
	HandoutText          string    `json:"handout_text,omitempty"`
	HandoutAssetFileName string    `json:"handout_asset_file_name,omitempty"`
	HandoutAssetURL      string    `json:"handout_asset_url,omitempty"`
	CommentAssetFileName string    `json:"comment_asset_file_name,omitempty"`
	CommentAssetURL      string    `json:"comment_asset_url,omitempty"`
	Authors              []*Author `gorm:"many2many:question_authors" json:"authors,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Author is a person credited as author or editor. Names are unique.
type Author struct {
	ID   string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
}

// Tag is a package label. Name keeps the spelling of the first import;
// NameKey is its lower-cased form and is unique.
type Tag struct {
	ID      string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	NameKey string `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
}

func (p *Package) BeforeCreate(*gorm.DB) error  { p.ID = ensureID(p.ID); return nil }
func (t *Tour) BeforeCreate(*gorm.DB) error     { t.ID = ensureID(t.ID); return nil }
func (b *Block) BeforeCreate(*gorm.DB) error    { b.ID = ensureID(b.ID); return nil }
func (q *Question) BeforeCreate(*gorm.DB) error { q.ID = ensureID(q.ID); return nil }
func (a *Author) BeforeCreate(*gorm.DB) error   { a.ID = ensureID(a.ID); return nil }
func (t *Tag) BeforeCreate(*gorm.DB) error      { t.ID = ensureID(t.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return NewID()
	}
	return id
}

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{&Author{}, &Tag{}, &Package{}, &Tour{}, &Block{}, &Question{}}
}
