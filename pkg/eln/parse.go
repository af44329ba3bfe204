package eln

import (
	"encoding/xml"
	"strings"

	"github.com/tidwall/gjson"
)

// The upstream API answers in JSON or XML depending on deployment and
// sometimes omits the Content-Type header entirely. Detection goes by header
// first and falls back to sniffing the first non-space byte.

func isXML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "xml") {
		return true
	}
	if strings.Contains(ct, "json") {
		return false
	}
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '<':
			return true
		default:
			return false
		}
	}
	return false
}

// firstJSON returns the first non-empty string among the given gjson paths.
func firstJSON(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// listJSON locates the item array: either the payload root is a bare array
// or the array sits under the given key.
func listJSON(data []byte, key string) gjson.Result {
	root := gjson.ParseBytes(data)
	if root.IsArray() {
		return root
	}
	return root.Get(key)
}

type xmlUserInfo struct {
	UserID     string `xml:"user_id"`
	ID         string `xml:"id"`
	UserUserID string `xml:"user>user_id"`
	UserID2    string `xml:"user>id"`
}

type xmlNotebook struct {
	ID         string `xml:"id"`
	Name       string `xml:"name"`
	Owner      string `xml:"owner"`
	CreatedAt  string `xml:"created_at"`
	ModifiedAt string `xml:"modified_at"`
}

// Both <notebooks><notebook>… and <response><notebooks><notebook>… roots
// occur in the wild; the struct accepts either.
type xmlNotebookList struct {
	Direct  []xmlNotebook `xml:"notebook"`
	Wrapped []xmlNotebook `xml:"notebooks>notebook"`
}

type xmlPage struct {
	ID         string `xml:"id"`
	NotebookID string `xml:"notebook_id"`
	Title      string `xml:"title"`
	Folder     string `xml:"folder"`
	FolderPath string `xml:"folder_path"`
	Owner      string `xml:"owner"`
	CreatedAt  string `xml:"created_at"`
	ModifiedAt string `xml:"modified_at"`
}

type xmlPageList struct {
	Direct  []xmlPage `xml:"page"`
	Wrapped []xmlPage `xml:"pages>page"`
}

type xmlEntry struct {
	ID         string `xml:"id"`
	PageID     string `xml:"page_id"`
	NotebookID string `xml:"notebook_id"`
	Kind       string `xml:"kind"`
	Type       string `xml:"type"`
	MimeType   string `xml:"mime_type"`
	Content    string `xml:"content"`
	Owner      string `xml:"owner"`
	CreatedAt  string `xml:"created_at"`
	ModifiedAt string `xml:"modified_at"`
}

type xmlEntryList struct {
	Direct  []xmlEntry `xml:"entry"`
	Wrapped []xmlEntry `xml:"entries>entry"`
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseUserInfo(body []byte, contentType string) (UserInfo, error) {
	if isXML(contentType, body) {
		var x xmlUserInfo
		if err := xml.Unmarshal(body, &x); err != nil {
			return UserInfo{}, newError(KindBadResponse, 0, "failed to parse user info XML", err)
		}
		id := coalesce(x.UserID, x.UserUserID, x.ID, x.UserID2)
		if id == "" {
			return UserInfo{}, newError(KindBadResponse, 0, "user info response missing user ID", nil)
		}
		return UserInfo{UserID: id}, nil
	}
	root := gjson.ParseBytes(body)
	id := firstJSON(root, "user_id", "id", "user.user_id", "user.id")
	if id == "" {
		return UserInfo{}, newError(KindBadResponse, 0, "user info response missing user ID", nil)
	}
	return UserInfo{UserID: id}, nil
}

func parseNotebooks(body []byte, contentType string) ([]Notebook, error) {
	if isXML(contentType, body) {
		var x xmlNotebookList
		if err := xml.Unmarshal(body, &x); err != nil {
			return nil, newError(KindBadResponse, 0, "failed to parse notebook list XML", err)
		}
		items := append(x.Direct, x.Wrapped...)
		out := make([]Notebook, 0, len(items))
		for _, n := range items {
			out = append(out, Notebook{
				ID:         n.ID,
				Name:       n.Name,
				Owner:      n.Owner,
				CreatedAt:  n.CreatedAt,
				ModifiedAt: n.ModifiedAt,
			})
		}
		return out, nil
	}
	list := listJSON(body, "notebooks")
	out := make([]Notebook, 0, int(list.Get("#").Int()))
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, Notebook{
			ID:         firstJSON(item, "id", "notebook_id"),
			Name:       firstJSON(item, "name", "title"),
			Owner:      item.Get("owner").String(),
			CreatedAt:  item.Get("created_at").String(),
			ModifiedAt: item.Get("modified_at").String(),
		})
		return true
	})
	return out, nil
}

func parsePages(body []byte, contentType string) ([]Page, error) {
	if isXML(contentType, body) {
		var x xmlPageList
		if err := xml.Unmarshal(body, &x); err != nil {
			return nil, newError(KindBadResponse, 0, "failed to parse page list XML", err)
		}
		items := append(x.Direct, x.Wrapped...)
		out := make([]Page, 0, len(items))
		for _, p := range items {
			out = append(out, Page{
				ID:         p.ID,
				NotebookID: p.NotebookID,
				Title:      p.Title,
				Folder:     coalesce(p.Folder, p.FolderPath),
				Owner:      p.Owner,
				CreatedAt:  p.CreatedAt,
				ModifiedAt: p.ModifiedAt,
			})
		}
		return out, nil
	}
	list := listJSON(body, "pages")
	out := make([]Page, 0, int(list.Get("#").Int()))
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, Page{
			ID:         firstJSON(item, "id", "page_id"),
			NotebookID: item.Get("notebook_id").String(),
			Title:      firstJSON(item, "title", "name"),
			Folder:     firstJSON(item, "folder", "folder_path"),
			Owner:      item.Get("owner").String(),
			CreatedAt:  item.Get("created_at").String(),
			ModifiedAt: item.Get("modified_at").String(),
		})
		return true
	})
	return out, nil
}

func parseEntries(body []byte, contentType string) ([]Entry, error) {
	if isXML(contentType, body) {
		var x xmlEntryList
		if err := xml.Unmarshal(body, &x); err != nil {
			return nil, newError(KindBadResponse, 0, "failed to parse entry list XML", err)
		}
		items := append(x.Direct, x.Wrapped...)
		out := make([]Entry, 0, len(items))
		for _, e := range items {
			out = append(out, Entry{
				ID:         e.ID,
				PageID:     e.PageID,
				NotebookID: e.NotebookID,
				Kind:       coalesce(e.Kind, e.Type),
				MimeType:   e.MimeType,
				Content:    e.Content,
				Owner:      e.Owner,
				CreatedAt:  e.CreatedAt,
				ModifiedAt: e.ModifiedAt,
			})
		}
		return out, nil
	}
	list := listJSON(body, "entries")
	out := make([]Entry, 0, int(list.Get("#").Int()))
	list.ForEach(func(_, item gjson.Result) bool {
		content := item.Get("content")
		text := content.String()
		if content.IsObject() || content.IsArray() {
			text = content.Raw
		}
		out = append(out, Entry{
			ID:         firstJSON(item, "id", "entry_id"),
			PageID:     item.Get("page_id").String(),
			NotebookID: item.Get("notebook_id").String(),
			Kind:       firstJSON(item, "kind", "type", "entry_type"),
			MimeType:   firstJSON(item, "mime_type", "content_type"),
			Content:    text,
			Owner:      item.Get("owner").String(),
			CreatedAt:  item.Get("created_at").String(),
			ModifiedAt: item.Get("modified_at").String(),
		})
		return true
	})
	return out, nil
}
