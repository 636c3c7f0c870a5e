package mimetree

import "testing"

type part struct {
	id       string
	mime     string
	children []*part
}

var acc = Accessor[*part]{
	MimeType: func(p *part) string { return p.mime },
	Children: func(p *part) []*part { return p.children },
}

func TestFindFirst(t *testing.T) {
	tree := &part{id: "root", mime: "multipart/mixed", children: []*part{
		{id: "alt", mime: "multipart/alternative", children: []*part{
			{id: "plain", mime: "text/plain; charset=UTF-8"},
			{id: "html", mime: "text/html"},
		}},
		{id: "html2", mime: "TEXT/HTML"},
		{id: "pdf", mime: "application/pdf"},
	}}

	tests := []struct {
		name   string
		root   *part
		want   string
		wantID string
		wantOK bool
	}{
		{"plain inside alternative", tree, "text/plain", "plain", true},
		{"first html wins over later html", tree, "text/html", "html", true},
		{"attachment", tree, "application/pdf", "pdf", true},
		{"missing type", tree, "image/png", "", false},
		{"single leaf root", &part{id: "only", mime: "text/plain"}, "text/plain", "only", true},
		{"container is not a leaf", &part{id: "c", mime: "multipart/mixed", children: []*part{{id: "x", mime: "text/html"}}}, "multipart/mixed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindFirst(tt.root, tt.want, acc)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got.id != tt.wantID {
				t.Errorf("expected %q, got %q", tt.wantID, got.id)
			}
		})
	}
}

func TestFindFirst_DeepTree(t *testing.T) {
	// 5000 levels of nesting
	root := &part{mime: "multipart/mixed"}
	cur := root
	for i := 0; i < 5000; i++ {
		next := &part{mime: "multipart/mixed"}
		cur.children = []*part{next}
		cur = next
	}
	cur.children = []*part{{id: "leaf", mime: "text/plain"}}

	got, ok := FindFirst(root, "text/plain", acc)
	if !ok || got.id != "leaf" {
		t.Fatalf("expected deep leaf, got %v %v", got, ok)
	}
}

func TestFindFirst_NodeBudget(t *testing.T) {
	children := make([]*part, MaxNodes+10)
	for i := range children {
		children[i] = &part{mime: "text/html"}
	}
	children[len(children)-1] = &part{id: "late", mime: "text/plain"}
	root := &part{mime: "multipart/mixed", children: children}

	if _, ok := FindFirst(root, "text/plain", acc); ok {
		t.Error("expected search to stop at the node budget")
	}
}
