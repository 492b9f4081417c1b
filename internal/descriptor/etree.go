package descriptor

import (
	"bytes"
	"errors"
	"strings"

	"github.com/beevik/etree"
)

const (
	itemGroupTag     = "ItemGroup"
	includeAttr      = "Include"
	conditionAttr    = "Condition"
	defaultIndentUse = "  "
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Markup that scanMarkup passes through without looking inside.
var opaqueSpans = []struct{ open, close string }{
	{"<!--", "-->"},
	{"<![CDATA[", "]]>"},
	{"<?", "?>"},
	{"<!", ">"},
}

// etreeTree is the default Tree backend. etree keeps whitespace, comments,
// processing instructions and attribute order, so an untouched document
// serializes back to its input. The byte-order mark, CRLF line endings and
// the `<a />` self-closing style are not tracked by etree and are restored
// on output. Attribute values are not: entities such as &gt; come back as
// raw characters, single quotes become double quotes and an empty
// `<X></X>` pair is written self-closed.
type etreeTree struct {
	doc             *etree.Document
	bom             bool
	crlf            bool
	spacedSelfClose bool
	indentUnit      string
}

// ParseXML parses descriptor bytes with the etree backend.
func ParseXML(data []byte) (Tree, error) {
	tree := &etreeTree{}
	if bytes.HasPrefix(data, utf8BOM) {
		tree.bom = true
		data = data[len(utf8BOM):]
	}
	tree.crlf = bytes.Contains(data, []byte("\r\n"))
	tree.spacedSelfClose = prefersSpacedSelfClose(data)

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("descriptor has no root element")
	}
	doc.WriteSettings = writeSettings()
	tree.doc = doc
	tree.indentUnit = detectIndentUnit(doc.Root())
	return tree, nil
}

func writeSettings() etree.WriteSettings {
	return etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalText:    true,
	}
}

func prefersSpacedSelfClose(data []byte) bool {
	spaced, tight := 0, 0
	eachElementTag(data, func(tag []byte) {
		if !bytes.HasSuffix(tag, []byte("/>")) {
			return
		}
		if len(tag) > 2 && tag[len(tag)-3] == ' ' {
			spaced++
		} else {
			tight++
		}
	})
	return spaced >= tight
}

func detectIndentUnit(root *etree.Element) string {
	for _, child := range root.ChildElements() {
		indent, ok := precedingIndent(child)
		if !ok {
			continue
		}
		if unit := strings.TrimPrefix(indent, "\n"); unit != "" {
			return unit
		}
	}
	return defaultIndentUse
}

func (t *etreeTree) groups() []*etree.Element {
	root := t.doc.Root()
	if root == nil {
		return nil
	}
	return root.SelectElements(itemGroupTag)
}

func (t *etreeTree) Items() []Item {
	return t.FindItems(nil)
}

func (t *etreeTree) FindItems(match func(Item) bool) []Item {
	var items []Item
	for _, group := range t.groups() {
		for _, child := range group.ChildElements() {
			item, ok := itemOf(child)
			if !ok {
				continue
			}
			if match == nil || match(item) {
				items = append(items, item)
			}
		}
	}
	return items
}

func itemOf(element *etree.Element) (Item, bool) {
	attr := element.SelectAttr(includeAttr)
	if attr == nil {
		return Item{}, false
	}
	return Item{Tag: element.Tag, Include: attr.Value}, true
}

func (t *etreeTree) AddItem(item Item) {
	group := t.targetGroup(item.Tag)
	if group == nil {
		group = etree.NewElement(itemGroupTag)
		t.appendIndented(t.doc.Root(), group)
	}
	element := etree.NewElement(item.Tag)
	element.CreateAttr(includeAttr, item.Include)
	t.appendIndented(group, element)
}

// targetGroup picks the group that already holds items of tag, then the
// first unconditional group with items, then the first unconditional group.
func (t *etreeTree) targetGroup(tag string) *etree.Element {
	var withItems, empty *etree.Element
	for _, group := range t.groups() {
		if group.SelectAttr(conditionAttr) != nil {
			continue
		}
		children := group.ChildElements()
		for _, child := range children {
			if child.Tag == tag {
				return group
			}
		}
		if len(children) > 0 && withItems == nil {
			withItems = group
		}
		if empty == nil {
			empty = group
		}
	}
	if withItems != nil {
		return withItems
	}
	return empty
}

func (t *etreeTree) RemoveItems(match func(Item) bool) int {
	root := t.doc.Root()
	removed := 0
	for _, group := range t.groups() {
		removedHere := 0
		for _, child := range group.ChildElements() {
			item, ok := itemOf(child)
			if !ok || !match(item) {
				continue
			}
			removeIndented(group, child)
			removedHere++
		}
		if removedHere > 0 && isBlank(group) {
			removeIndented(root, group)
		}
		removed += removedHere
	}
	return removed
}

func (t *etreeTree) Clone() Tree {
	doc := t.doc.Copy()
	doc.WriteSettings = writeSettings()
	return &etreeTree{
		doc:             doc,
		bom:             t.bom,
		crlf:            t.crlf,
		spacedSelfClose: t.spacedSelfClose,
		indentUnit:      t.indentUnit,
	}
}

func (t *etreeTree) Serialize() ([]byte, error) {
	out, err := t.doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	if t.spacedSelfClose {
		out = spaceSelfClosing(out)
	}
	if t.crlf {
		out = bytes.ReplaceAll(out, []byte("\r\n"), []byte("\n"))
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	if t.bom {
		out = append(append([]byte{}, utf8BOM...), out...)
	}
	return out, nil
}

// eachElementTag calls visit with every element tag in data, from `<` to
// `>`. Comments, CDATA sections, processing instructions and declarations
// are skipped.
func eachElementTag(data []byte, visit func(tag []byte)) {
	scanMarkup(data, func(chunk []byte, element bool) {
		if element {
			visit(chunk)
		}
	})
}

// spaceSelfClosing rewrites `<a/>` element tags as `<a />`. Everything
// outside element tags is copied as written.
func spaceSelfClosing(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/32)
	scanMarkup(data, func(chunk []byte, element bool) {
		if element && bytes.HasSuffix(chunk, []byte("/>")) && len(chunk) > 2 && chunk[len(chunk)-3] != ' ' {
			out = append(out, chunk[:len(chunk)-2]...)
			out = append(out, " />"...)
			return
		}
		out = append(out, chunk...)
	})
	return out
}

// scanMarkup splits data into consecutive chunks, flagging the ones that
// are element tags.
func scanMarkup(data []byte, chunk func(part []byte, element bool)) {
	for i := 0; i < len(data); {
		if data[i] != '<' {
			next := bytes.IndexByte(data[i:], '<')
			if next < 0 {
				next = len(data) - i
			}
			chunk(data[i:i+next], false)
			i += next
			continue
		}
		if end, ok := opaqueEnd(data, i); ok {
			chunk(data[i:end], false)
			i = end
			continue
		}
		end := tagEnd(data, i)
		chunk(data[i:end], true)
		i = end
	}
}

// opaqueEnd returns the end of the verbatim span starting at i, if any.
func opaqueEnd(data []byte, i int) (int, bool) {
	for _, span := range opaqueSpans {
		if !bytes.HasPrefix(data[i:], []byte(span.open)) {
			continue
		}
		body := i + len(span.open)
		closing := bytes.Index(data[body:], []byte(span.close))
		if closing < 0 {
			return len(data), true
		}
		return body + closing + len(span.close), true
	}
	return 0, false
}

// tagEnd returns the index just past the `>` closing the tag at i, skipping
// quoted attribute values.
func tagEnd(data []byte, i int) int {
	var quote byte
	for j := i + 1; j < len(data); j++ {
		switch c := data[j]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return j + 1
		}
	}
	return len(data)
}

// appendIndented inserts child after the last element of parent, copying the
// whitespace that precedes that element.
func (t *etreeTree) appendIndented(parent, child *etree.Element) {
	children := parent.ChildElements()
	if len(children) > 0 {
		last := children[len(children)-1]
		indent, ok := precedingIndent(last)
		if !ok {
			indent = t.indentFor(parent) + t.indentUnit
		}
		index := last.Index()
		parent.InsertChildAt(index+1, etree.NewText(indent))
		parent.InsertChildAt(index+2, child)
		return
	}

	closing := t.indentFor(parent)
	for i := len(parent.Child) - 1; i >= 0; i-- {
		if text, ok := parent.Child[i].(*etree.CharData); ok && text.IsWhitespace() {
			parent.RemoveChildAt(i)
		}
	}
	parent.AddChild(etree.NewText(closing + t.indentUnit))
	parent.AddChild(child)
	parent.AddChild(etree.NewText(closing))
}

func (t *etreeTree) indentFor(element *etree.Element) string {
	if indent, ok := precedingIndent(element); ok {
		return indent
	}
	depth := 0
	for parent := element.Parent(); parent != nil && parent.Parent() != nil; parent = parent.Parent() {
		depth++
	}
	return "\n" + strings.Repeat(t.indentUnit, depth)
}

// precedingIndent returns the newline and indentation written before
// element, dropping any blank lines.
func precedingIndent(element *etree.Element) (string, bool) {
	parent := element.Parent()
	index := element.Index()
	if parent == nil || index <= 0 {
		return "", false
	}
	text, ok := parent.Child[index-1].(*etree.CharData)
	if !ok || !text.IsWhitespace() {
		return "", false
	}
	newline := strings.LastIndex(text.Data, "\n")
	if newline < 0 {
		return "", false
	}
	return text.Data[newline:], true
}

func removeIndented(parent, element *etree.Element) {
	index := element.Index()
	parent.RemoveChildAt(index)
	if index > 0 {
		if text, ok := parent.Child[index-1].(*etree.CharData); ok && text.IsWhitespace() {
			parent.RemoveChildAt(index - 1)
		}
	}
}

func isBlank(element *etree.Element) bool {
	for _, token := range element.Child {
		text, ok := token.(*etree.CharData)
		if !ok || !text.IsWhitespace() {
			return false
		}
	}
	return true
}
