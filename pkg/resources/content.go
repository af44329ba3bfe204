package resources

import (
	"encoding/json"
	"fmt"

	"github.com/benchnote/eln-mcp/pkg/eln"
)

const mimeJSON = "application/json"

// Content is the payload of a resources/read. Text carries the serialized
// body; Metadata preserves upstream provenance fields; Context is the JSON-LD
// context, present only when semantic annotation is enabled.
type Content struct {
	URI      string         `json:"uri"`
	MIMEType string         `json:"mimeType"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// jsonLDContext maps the metadata vocabulary onto schema.org terms so reads
// can be consumed as linked data.
func jsonLDContext() map[string]any {
	return map[string]any{
		"@vocab":        "https://schema.org/",
		"created_at":    "dateCreated",
		"modified_at":   "dateModified",
		"owner":         "creator",
		"notebook_name": "isPartOf",
		"page_title":    "name",
	}
}

// metadata builds the provenance map, dropping empty values so records stay
// compact.
func metadata(pairs ...[2]string) map[string]any {
	m := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		if kv[1] != "" {
			m[kv[0]] = kv[1]
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func notebookContent(uri URI, nb eln.Notebook, pages []eln.Page, withLD bool) (*Content, error) {
	type pageRef struct {
		URI    string `json:"uri"`
		ID     string `json:"id"`
		Title  string `json:"title"`
		Folder string `json:"folder,omitempty"`
	}
	doc := struct {
		ID    string    `json:"id"`
		Name  string    `json:"name"`
		Pages []pageRef `json:"pages"`
	}{ID: nb.ID, Name: nb.Name, Pages: make([]pageRef, 0, len(pages))}
	for _, p := range pages {
		doc.Pages = append(doc.Pages, pageRef{
			URI:    PageURI(nb.ID, p.ID).String(),
			ID:     p.ID,
			Title:  p.Title,
			Folder: p.Folder,
		})
	}
	text, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing notebook %s: %w", nb.ID, err)
	}
	c := &Content{
		URI:      uri.String(),
		MIMEType: mimeJSON,
		Text:     string(text),
		Metadata: metadata(
			[2]string{"notebook_id", nb.ID},
			[2]string{"notebook_name", nb.Name},
			[2]string{"owner", nb.Owner},
			[2]string{"created_at", nb.CreatedAt},
			[2]string{"modified_at", nb.ModifiedAt},
		),
	}
	if withLD {
		c.Context = jsonLDContext()
	}
	return c, nil
}

func pageContent(uri URI, notebookName string, page eln.Page, entries []eln.Entry, withLD bool) (*Content, error) {
	type entryRef struct {
		URI  string `json:"uri"`
		ID   string `json:"id"`
		Kind string `json:"kind,omitempty"`
	}
	doc := struct {
		ID      string     `json:"id"`
		Title   string     `json:"title"`
		Folder  string     `json:"folder,omitempty"`
		Entries []entryRef `json:"entries"`
	}{ID: page.ID, Title: page.Title, Folder: page.Folder, Entries: make([]entryRef, 0, len(entries))}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, entryRef{
			URI:  EntryURI(uri.NotebookID, page.ID, e.ID).String(),
			ID:   e.ID,
			Kind: e.Kind,
		})
	}
	text, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing page %s: %w", page.ID, err)
	}
	c := &Content{
		URI:      uri.String(),
		MIMEType: mimeJSON,
		Text:     string(text),
		Metadata: metadata(
			[2]string{"notebook_id", uri.NotebookID},
			[2]string{"notebook_name", notebookName},
			[2]string{"page_title", page.Title},
			[2]string{"folder_path", page.Folder},
			[2]string{"owner", page.Owner},
			[2]string{"created_at", page.CreatedAt},
			[2]string{"modified_at", page.ModifiedAt},
		),
	}
	if withLD {
		c.Context = jsonLDContext()
	}
	return c, nil
}

func entryContent(uri URI, notebookName string, page eln.Page, entry eln.Entry, withLD bool) *Content {
	c := &Content{
		URI:      uri.String(),
		MIMEType: entryMIMEType(entry),
		Text:     entry.Content,
		Metadata: metadata(
			[2]string{"notebook_id", uri.NotebookID},
			[2]string{"notebook_name", notebookName},
			[2]string{"page_title", page.Title},
			[2]string{"folder_path", page.Folder},
			[2]string{"entry_kind", entry.Kind},
			[2]string{"owner", entry.Owner},
			[2]string{"created_at", entry.CreatedAt},
			[2]string{"modified_at", entry.ModifiedAt},
		),
	}
	if withLD {
		c.Context = jsonLDContext()
	}
	return c
}

// entryMIMEType prefers the upstream declaration and otherwise derives a type
// from the entry kind. Structured content stays JSON.
func entryMIMEType(entry eln.Entry) string {
	if entry.MimeType != "" {
		return entry.MimeType
	}
	switch entry.Kind {
	case "text", "plain_text":
		return "text/plain"
	case "html", "rich_text":
		return "text/html"
	default:
		return mimeJSON
	}
}
