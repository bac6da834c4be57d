package format

import (
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/beevik/etree"
)

// DefaultEntryTag is the record element of UniProt XML documents.
const DefaultEntryTag = "entry"

// entryTag picks the repeated record element of a root. <entry> wins when
// present; otherwise the most frequent child tag, ignoring a trailing element
// that occurs once (e.g. <copyright>). ok is false when the root holds no
// records.
func entryTag(root *etree.Element) (tag string, ok bool) {
	children := root.ChildElements()
	counts := make(map[string]int)
	var order []string
	for _, child := range children {
		if counts[child.Tag] == 0 {
			order = append(order, child.Tag)
		}
		counts[child.Tag]++
	}
	if counts[DefaultEntryTag] > 0 {
		return DefaultEntryTag, true
	}
	if len(children) > 0 {
		if last := children[len(children)-1].Tag; counts[last] == 1 {
			delete(counts, last)
		}
	}
	best := 0
	for _, t := range order {
		if counts[t] > best {
			tag, best = t, counts[t]
		}
	}
	return tag, best > 0
}

// countEntries counts the record elements of root.
func countEntries(root *etree.Element) int {
	tag, ok := entryTag(root)
	if !ok {
		return 0
	}
	return len(entryElements(root, tag))
}

func entryElements(root *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
	}
	return out
}

// mergeDocuments splices the record elements of every document after the
// first into the first document's root. Spliced elements land after the last
// record of the merged root, so trailing elements such as <copyright> stay
// last and page order is kept.
func mergeDocuments(pages [][]byte) ([]byte, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	if len(pages) == 1 {
		return pages[0], nil
	}

	base := etree.NewDocument()
	if err := base.ReadFromBytes(pages[0]); err != nil {
		return nil, &client.ProtocolError{Op: "merge xml pages", Detail: "invalid first page", Err: err}
	}
	root := base.Root()
	if root == nil {
		return nil, &client.ProtocolError{Op: "merge xml pages", Detail: "first page has no root element"}
	}
	docs := make([]*etree.Element, 0, len(pages)-1)
	for _, raw := range pages[1:] {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(raw); err != nil {
			return nil, &client.ProtocolError{Op: "merge xml pages", Detail: "invalid page", Err: err}
		}
		if doc.Root() != nil {
			docs = append(docs, doc.Root())
		}
	}

	// The record tag comes from the first document that has records.
	tag := DefaultEntryTag
	for _, r := range append([]*etree.Element{root}, docs...) {
		if t, ok := entryTag(r); ok {
			tag = t
			break
		}
	}

	insertAt := insertionIndex(root, tag)
	for _, pageRoot := range docs {
		for _, el := range entryElements(pageRoot, tag) {
			pageRoot.RemoveChild(el)
			root.InsertChildAt(insertAt, el)
			insertAt = el.Index() + 1
		}
	}

	out, err := base.WriteToBytes()
	if err != nil {
		return nil, &client.ProtocolError{Op: "merge xml pages", Detail: "serialize merged document", Err: err}
	}
	return out, nil
}

// insertionIndex returns the child token index right after the last record
// element. Without records it is the position of the last child element, or
// the end of the token list.
func insertionIndex(root *etree.Element, tag string) int {
	children := root.ChildElements()
	for i := len(children) - 1; i >= 0; i-- {
		if children[i].Tag == tag {
			return children[i].Index() + 1
		}
	}
	if len(children) > 0 {
		return children[len(children)-1].Index()
	}
	return len(root.Child)
}
