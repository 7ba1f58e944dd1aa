package templates

import (
	"html/template"
	"time"
)

type BaseData struct {
	Title         string
	CanonicalLink string
	BodyClasses   []string
	Breadcrumbs   []Breadcrumb
	Notices       []Notice

	CurrentUrl   string
	LoginPageUrl string

	User    *User
	Session *Session

	Header Header
}

func (bd *BaseData) AddImmediateNotice(class, content string) {
	bd.Notices = append(bd.Notices, Notice{
		Class:   class,
		Content: template.HTML(content),
	})
}

type Header struct {
	HomepageUrl      string
	ActiveTopicsUrl  string
	SearchUrl        string
	NotificationsUrl string
	LoginUrl         string
	LogoutUrl        string

	UnreadNotifications int
}

type Breadcrumb struct {
	Name string
	Url  string
}

type Notice struct {
	Content template.HTML
	Class   string
}

type Session struct {
	CSRFToken string
}

type User struct {
	ID          int
	Username    string
	IsStaff     bool
	IsModerator bool
}

type Category struct {
	ID          int
	Title       string
	Description string
	Url         string
	Color       string

	IsClosed  bool
	IsRemoved bool
	IsPrivate bool

	Subcategories []Category
	PublishUrl    string
}

type Topic struct {
	ID    int
	Title string
	Url   string

	Category *Category
	Author   *User

	Date          time.Time
	LastActive    time.Time
	LastCommenter *User
	CommentCount  int
	ViewCount     int

	IsPinned         bool
	IsGloballyPinned bool
	IsClosed         bool
	IsRemoved        bool

	Unread bool
}

type Comment struct {
	ID     int
	Url    string
	Anchor string

	Author  *User
	Content template.HTML
	Date    time.Time

	LastModified *time.Time
	EditCount    int

	// Set for moderation log entries, which render as a one-line note.
	Action string

	IsRemoved bool

	EditUrl   string
	DeleteUrl string
}

// An older version of a comment, from before an edit.
type CommentRevision struct {
	Date    time.Time
	Content template.HTML
}

type ModerationAction struct {
	Name  string
	Label string
	Url   string
}

// FormErrors maps a form field to the messages shown next to it.
type FormErrors map[string][]string

type Pagination struct {
	Current int
	Total   int

	FirstUrl    string
	LastUrl     string
	PreviousUrl string
	NextUrl     string
}

type SearchResult struct {
	Title    template.HTML
	Snippet  template.HTML
	Url      string
	Category *Category
}

type Notification struct {
	Topic   Topic
	Url     string
	Reason  string
	Comment *Comment
}
