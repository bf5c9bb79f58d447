package editor

// Payload is the initialisation object the editor page passes to the embedded
// editor. It is also what gets signed into the access token.
type Payload struct {
	Document     PayloadDocument `json:"document"`
	DocumentType string          `json:"documentType"`
	EditorConfig EditorConfig    `json:"editorConfig"`
	Token        string          `json:"token,omitempty"`
}

type PayloadDocument struct {
	FileType    string      `json:"fileType"`
	Key         string      `json:"key"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Permissions Permissions `json:"permissions"`
}

type EditorConfig struct {
	CallbackURL   string        `json:"callbackUrl"`
	Mode          string        `json:"mode"`
	User          Identity      `json:"user"`
	Customization Customization `json:"customization"`
}

type Customization struct {
	Review ReviewCustomization `json:"review"`
}

type ReviewCustomization struct {
	TrackChanges bool `json:"trackChanges"`
}

// EditorPayload renders the config in the editor's nested shape. The editor only
// knows "edit" and "view"; review sessions open in edit mode with editing
// permission withheld so changes are recorded as tracked revisions.
func (c SessionConfig) EditorPayload() Payload {
	mode := "view"
	if c.Permissions.Edit || c.Permissions.Review || c.Permissions.Comment {
		mode = ModeEdit
	}
	return Payload{
		Document: PayloadDocument{
			FileType:    c.FileType,
			Key:         c.DocumentKey,
			Title:       c.DocumentTitle,
			URL:         c.DocumentURL,
			Permissions: c.Permissions,
		},
		DocumentType: "word",
		EditorConfig: EditorConfig{
			CallbackURL:   c.CallbackURL,
			Mode:          mode,
			User:          c.ReviewerIdentity,
			Customization: Customization{Review: ReviewCustomization{TrackChanges: c.TrackChanges}},
		},
	}
}

// WithToken returns a copy of p carrying token.
func (p Payload) WithToken(token string) Payload {
	p.Token = token
	return p
}
