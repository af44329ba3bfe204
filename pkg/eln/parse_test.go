package eln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsXML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{name: "json header", contentType: "application/json", body: "<x/>", want: false},
		{name: "xml header", contentType: "application/xml; charset=utf-8", body: "{}", want: true},
		{name: "text xml header", contentType: "text/xml", body: "{}", want: true},
		{name: "sniff xml", contentType: "", body: "  <response/>", want: true},
		{name: "sniff json", contentType: "", body: "\n{\"a\":1}", want: false},
		{name: "sniff json array", contentType: "text/plain", body: "[1]", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isXML(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestParseUserInfo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		body        string
		contentType string
		want        string
		wantErr     bool
	}{
		{name: "flat json", body: `{"user_id":"U1"}`, contentType: "application/json", want: "U1"},
		{name: "id fallback", body: `{"id":"U2"}`, contentType: "application/json", want: "U2"},
		{name: "nested json", body: `{"user":{"id":"U3"}}`, contentType: "application/json", want: "U3"},
		{name: "xml", body: `<user_info><user_id>U4</user_id></user_info>`, contentType: "application/xml", want: "U4"},
		{name: "xml nested", body: `<response><user><id>U5</id></user></response>`, contentType: "text/xml", want: "U5"},
		{name: "missing id", body: `{"other":1}`, contentType: "application/json", wantErr: true},
		{name: "sniffed xml without header", body: `<r><user_id>U6</user_id></r>`, contentType: "", want: "U6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseUserInfo([]byte(tt.body), tt.contentType)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindBadResponse, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.UserID)
		})
	}
}

func TestParseNotebooksJSON(t *testing.T) {
	t.Parallel()
	body := `{"notebooks":[{"id":"N1","name":"Alpha","owner":"ada"},{"id":"N2","name":"Beta"}]}`
	got, err := parseNotebooks([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Notebook{ID: "N1", Name: "Alpha", Owner: "ada"}, got[0])
	assert.Equal(t, "N2", got[1].ID)
}

func TestParseNotebooksBareArray(t *testing.T) {
	t.Parallel()
	got, err := parseNotebooks([]byte(`[{"id":"N1","name":"Alpha"}]`), "application/json")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Name)
}

func TestParseNotebooksXML(t *testing.T) {
	t.Parallel()
	body := `<notebooks><notebook><id>N1</id><name>Alpha</name></notebook></notebooks>`
	got, err := parseNotebooks([]byte(body), "application/xml")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "N1", got[0].ID)
	assert.Equal(t, "Alpha", got[0].Name)

	wrapped := `<response><notebooks><notebook><id>N2</id><name>Beta</name></notebook></notebooks></response>`
	got, err = parseNotebooks([]byte(wrapped), "text/xml")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "N2", got[0].ID)
}

func TestParsePages(t *testing.T) {
	t.Parallel()
	body := `{"pages":[
		{"id":"P1","notebook_id":"N1","title":"Run 1","folder":"Chem","created_at":"2024-01-01T00:00:00Z"},
		{"id":"P2","notebook_id":"N1","title":"Run 2","folder_path":"Chemistry"},
		{"id":"P3","notebook_id":"N1","title":"Unfiled"}
	]}`
	got, err := parsePages([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Chem", got[0].Folder)
	assert.Equal(t, "2024-01-01T00:00:00Z", got[0].CreatedAt)
	assert.Equal(t, "Chemistry", got[1].Folder, "folder_path key accepted")
	assert.Equal(t, "", got[2].Folder, "missing folder maps to empty path")
}

func TestParsePagesXML(t *testing.T) {
	t.Parallel()
	body := `<pages><page><id>P1</id><notebook_id>N1</notebook_id><title>T</title><folder>Chem/Organic</folder></page></pages>`
	got, err := parsePages([]byte(body), "application/xml")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Chem/Organic", got[0].Folder)
	assert.Equal(t, "N1", got[0].NotebookID)
}

func TestParseEntries(t *testing.T) {
	t.Parallel()
	body := `{"entries":[
		{"id":"E1","page_id":"P1","notebook_id":"N1","kind":"text","content":"hello","mime_type":"text/plain"},
		{"id":"E2","page_id":"P1","notebook_id":"N1","type":"attachment","content":{"filename":"a.png"}}
	]}`
	got, err := parseEntries([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "text", got[0].Kind)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "attachment", got[1].Kind, "type key accepted")
	assert.JSONEq(t, `{"filename":"a.png"}`, got[1].Content, "structured content kept as raw JSON")
}

func TestParseEntriesXML(t *testing.T) {
	t.Parallel()
	body := `<entries><entry><id>E1</id><page_id>P1</page_id><notebook_id>N1</notebook_id><kind>text</kind><content>hi</content></entry></entries>`
	got, err := parseEntries([]byte(body), "text/xml")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
}

func TestParseMalformedXML(t *testing.T) {
	t.Parallel()
	_, err := parseNotebooks([]byte("<notebooks><notebook>"), "application/xml")
	require.Error(t, err)
	assert.Equal(t, KindBadResponse, KindOf(err))
}
