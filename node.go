package webplatform

import (
	"fmt"
	"strings"

	"github.com/6over3/webplatform/bridge"
)

// Node is a handle to one host object. It is a plain value: copying it does
// not copy the object, and dropping it releases nothing.
type Node struct {
	id      bridge.Handle
	session *Session
}

// ID returns the node's slot in the host handle table.
func (n Node) ID() bridge.Handle { return n.id }

// Session returns the session the node belongs to.
func (n Node) Session() *Session { return n.session }

// Equal reports whether n and o are the same handle. Distinct handles may
// still name the same object; see SameAs.
func (n Node) Equal(o Node) bool {
	return n.id == o.id && n.session == o.session
}

// SameAs reports whether n and o refer to the same host object. Handles
// outside the host table refer to nothing and are never the same.
func (n Node) SameAs(o Node) (bool, error) {
	ret, err := nodeSame.Call(n.session.context(), n.session.invoker(), i32(n.id), i32(o.id))
	if err != nil {
		return false, err
	}
	return ret == 1, nil
}

func (n Node) String() string {
	return fmt.Sprintf("Node(%d)", int32(n.id))
}

func (n Node) str(ret bridge.Slot, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return n.session.inv.String(ret)
}

func (n Node) optStr(ret bridge.Slot, err error) (string, bool, error) {
	if err != nil {
		return "", false, err
	}
	return n.session.inv.OptString(ret)
}

func (n Node) optNode(ret bridge.Slot, err error) (Node, bool, error) {
	if err != nil {
		return Node{}, false, err
	}
	node, ok := n.session.optNode(ret)
	return node, ok, nil
}

func discard(_ bridge.Slot, err error) error { return err }

// Query returns the first descendant matching selector.
func (n Node) Query(selector string) (Node, bool, error) {
	s := n.session
	return n.optNode(nodeQuery.Call(s.context(), s.invoker(), i32(n.id), text(selector)))
}

// QueryAll returns every descendant matching selector, in document order.
func (n Node) QueryAll(selector string) ([]Node, error) {
	s := n.session
	return s.queryAll(func(out bridge.Ptr) (bridge.Slot, error) {
		return nodeQueryAll.Call(s.context(), s.invoker(), i32(n.id), text(selector), out)
	})
}

// TagName returns the lower-cased tag name.
func (n Node) TagName() (string, error) {
	s := n.session
	return n.str(nodeTagName.Call(s.context(), s.invoker(), i32(n.id)))
}

// Focus focuses the element.
func (n Node) Focus() error {
	s := n.session
	return discard(nodeFocus.Call(s.context(), s.invoker(), i32(n.id)))
}

// SetHTML replaces the element's children by parsing html.
func (n Node) SetHTML(html string) error {
	s := n.session
	return discard(nodeSetHTML.Call(s.context(), s.invoker(), i32(n.id), text(html)))
}

// PatchHTML morphs the element's children into html, keeping every existing
// node whose position and kind still match so handles to them stay valid.
func (n Node) PatchHTML(html string) error {
	s := n.session
	return discard(nodePatchHTML.Call(s.context(), s.invoker(), i32(n.id), text(html)))
}

// HTML returns the element's inner HTML.
func (n Node) HTML() (string, error) {
	s := n.session
	return n.str(nodeHTML.Call(s.context(), s.invoker(), i32(n.id)))
}

// AppendHTML parses html and inserts it after the last child.
func (n Node) AppendHTML(html string) error {
	s := n.session
	return discard(nodeInsertHTML.Call(s.context(), s.invoker(), i32(n.id), "beforeend", text(html)))
}

// PrependHTML parses html and inserts it before the first child.
func (n Node) PrependHTML(html string) error {
	s := n.session
	return discard(nodeInsertHTML.Call(s.context(), s.invoker(), i32(n.id), "afterbegin", text(html)))
}

// Classes returns the element's class names, without duplicates, in the
// order they appear.
func (n Node) Classes() ([]string, error) {
	s := n.session
	names, err := n.str(nodeClassName.Call(s.context(), s.invoker(), i32(n.id)))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range strings.Fields(names) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// AddClass adds a class name.
func (n Node) AddClass(class string) error {
	s := n.session
	return discard(nodeAddClass.Call(s.context(), s.invoker(), i32(n.id), text(class)))
}

// RemoveClass removes a class name.
func (n Node) RemoveClass(class string) error {
	s := n.session
	return discard(nodeRemoveClass.Call(s.context(), s.invoker(), i32(n.id), text(class)))
}

// Parent returns the parent node, allocating a new handle for it.
func (n Node) Parent() (Node, bool, error) {
	s := n.session
	return n.optNode(nodeParent.Call(s.context(), s.invoker(), i32(n.id)))
}

// SetData sets dataset[key].
func (n Node) SetData(key, value string) error {
	s := n.session
	return discard(nodeSetData.Call(s.context(), s.invoker(), i32(n.id), text(key), text(value)))
}

// Data returns dataset[key]. ok is false when it is unset.
func (n Node) Data(key string) (string, bool, error) {
	s := n.session
	return n.optStr(nodeData.Call(s.context(), s.invoker(), i32(n.id), text(key)))
}

// SetStyle sets style[prop].
func (n Node) SetStyle(prop, value string) error {
	s := n.session
	return discard(nodeSetStyle.Call(s.context(), s.invoker(), i32(n.id), text(prop), text(value)))
}

// Style returns style[prop], or "" when unset.
func (n Node) Style(prop string) (string, error) {
	s := n.session
	return n.str(nodeStyle.Call(s.context(), s.invoker(), i32(n.id), text(prop)))
}

// SetPropInt sets the property name to an integer.
func (n Node) SetPropInt(name string, v int32) error {
	s := n.session
	return discard(nodeSetPropInt.Call(s.context(), s.invoker(), i32(n.id), text(name), i32(v)))
}

// SetProp sets the property name to a string.
func (n Node) SetProp(name, value string) error {
	s := n.session
	return discard(nodeSetProp.Call(s.context(), s.invoker(), i32(n.id), text(name), text(value)))
}

// PropInt returns the property name converted to a 32-bit integer. Values
// that are not numbers read as 0.
func (n Node) PropInt(name string) (int32, error) {
	s := n.session
	ret, err := nodePropInt.Call(s.context(), s.invoker(), i32(n.id), text(name))
	return int32(ret), err
}

// Prop returns the property name converted to a string. ok is false when
// the property is null or undefined.
func (n Node) Prop(name string) (string, bool, error) {
	s := n.session
	return n.optStr(nodeProp.Call(s.context(), s.invoker(), i32(n.id), text(name)))
}

// SetAttrInt sets the attribute name to the decimal form of v.
func (n Node) SetAttrInt(name string, v int32) error {
	s := n.session
	return discard(nodeSetAttrInt.Call(s.context(), s.invoker(), i32(n.id), text(name), i32(v)))
}

// SetAttr sets the attribute name.
func (n Node) SetAttr(name, value string) error {
	s := n.session
	return discard(nodeSetAttr.Call(s.context(), s.invoker(), i32(n.id), text(name), text(value)))
}

// AttrInt returns the attribute name converted to a 32-bit integer.
// Missing and non-numeric attributes read as 0.
func (n Node) AttrInt(name string) (int32, error) {
	s := n.session
	ret, err := nodeAttrInt.Call(s.context(), s.invoker(), i32(n.id), text(name))
	return int32(ret), err
}

// Attr returns the attribute name. ok is false when the element does not
// have it.
func (n Node) Attr(name string) (string, bool, error) {
	s := n.session
	return n.optStr(nodeAttr.Call(s.context(), s.invoker(), i32(n.id), text(name)))
}

// Append moves child to the end of n's children.
func (n Node) Append(child Node) error {
	s := n.session
	return discard(nodeAppend.Call(s.context(), s.invoker(), i32(n.id), i32(child.id)))
}

// Remove detaches the node from its parent. The handle stays valid.
func (n Node) Remove() error {
	s := n.session
	return discard(nodeRemove.Call(s.context(), s.invoker(), i32(n.id)))
}

// On registers fn for events of the given type, delivered during the target
// and bubbling phases.
func (n Node) On(event string, fn func(Event)) error {
	return n.listen(nodeListen, event, fn)
}

// OnCapture registers fn for events of the given type, delivered during the
// capturing and target phases.
func (n Node) OnCapture(event string, fn func(Event)) error {
	return n.listen(nodeListenCapture, event, fn)
}
