package main

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/6over3/webplatform"
)

const appTemplate = `<section id="todo">
<h1>todo</h1>
<input id="title" type="text" placeholder="What needs doing?">
<button id="add">add</button>
<ul id="items"></ul>
<p id="count"></p>
<nav><a href="#">all</a> <a href="#active">active</a> <a href="#done">done</a></nav>
<button id="clear">clear done</button>
</section>`

const keyPrefix = "todo:"

type todo struct {
	id    string
	title string
	done  bool
}

func (t todo) encode() string {
	if t.done {
		return "1|" + t.title
	}
	return "0|" + t.title
}

func decodeTodo(id, v string) (todo, bool) {
	flag, title, ok := strings.Cut(v, "|")
	if !ok || (flag != "0" && flag != "1") {
		return todo{}, false
	}
	return todo{id: id, title: title, done: flag == "1"}, true
}

// todoApp is a small to-do list kept in localStorage. The list is
// re-rendered with PatchHTML, so items that did not change keep their
// nodes.
type todoApp struct {
	s      *webplatform.Session
	logger *zap.Logger

	items  []todo
	filter string

	list, title, count webplatform.Node
}

func mountApp(s *webplatform.Session, logger *zap.Logger) (*todoApp, error) {
	a := &todoApp{s: s, logger: logger.Named("app")}

	body, ok, err := s.Query("body")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("document has no body")
	}
	if err := body.SetHTML(appTemplate); err != nil {
		return nil, err
	}
	for sel, dst := range map[string]*webplatform.Node{"#items": &a.list, "#title": &a.title, "#count": &a.count} {
		n, ok, err := s.Query(sel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("template is missing %s", sel)
		}
		*dst = n
	}

	if err := a.restore(); err != nil {
		return nil, err
	}
	hash, err := s.LocationHash()
	if err != nil {
		return nil, err
	}
	a.filter = strings.TrimPrefix(hash, "#")

	if err := a.listen("#add", a.onAdd); err != nil {
		return nil, err
	}
	if err := a.listen("#clear", a.onClear); err != nil {
		return nil, err
	}
	if err := a.list.On("click", a.onToggle); err != nil {
		return nil, err
	}
	if err := s.On("hashchange", a.onHash); err != nil {
		return nil, err
	}
	return a, a.render()
}

func (a *todoApp) listen(selector string, fn func(webplatform.Event)) error {
	n, ok, err := a.s.Query(selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("template is missing %s", selector)
	}
	return n.On("click", fn)
}

// restore loads the stored items in creation order.
func (a *todoApp) restore() error {
	st := a.s.LocalStorage()
	it := st.Iter()
	for it.Next() {
		key := it.Key()
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		v, ok, err := st.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		t, ok := decodeTodo(strings.TrimPrefix(key, keyPrefix), v)
		if !ok {
			a.logger.Warn("skipping malformed item", zap.String("key", key))
			continue
		}
		a.items = append(a.items, t)
	}
	if err := it.Err(); err != nil {
		return err
	}
	sort.Slice(a.items, func(i, j int) bool { return a.items[i].id < a.items[j].id })
	a.logger.Debug("restored", zap.Int("items", len(a.items)))
	return nil
}

func (a *todoApp) save(t todo) error {
	return a.s.LocalStorage().Set(keyPrefix+t.id, t.encode())
}

func (a *todoApp) add(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return a.s.Alert("nothing to add")
	}
	t := todo{id: ulid.Make().String(), title: title}
	a.items = append(a.items, t)
	if err := a.save(t); err != nil {
		return err
	}
	return a.render()
}

func (a *todoApp) toggle(id string) error {
	for i := range a.items {
		if a.items[i].id != id {
			continue
		}
		a.items[i].done = !a.items[i].done
		if err := a.save(a.items[i]); err != nil {
			return err
		}
		return a.render()
	}
	return nil
}

func (a *todoApp) clearDone() error {
	st := a.s.LocalStorage()
	kept := a.items[:0]
	for _, t := range a.items {
		if !t.done {
			kept = append(kept, t)
			continue
		}
		if err := st.Remove(keyPrefix + t.id); err != nil {
			return err
		}
	}
	a.items = kept
	return a.render()
}

func (a *todoApp) visible(t todo) bool {
	switch a.filter {
	case "active":
		return !t.done
	case "done":
		return t.done
	default:
		return true
	}
}

func (a *todoApp) render() error {
	var b strings.Builder
	left := 0
	for _, t := range a.items {
		if !t.done {
			left++
		}
		if !a.visible(t) {
			continue
		}
		class := ""
		if t.done {
			class = ` class="done"`
		}
		fmt.Fprintf(&b, `<li data-id="%s"%s>%s</li>`, t.id, class, html.EscapeString(t.title))
	}
	if err := a.list.PatchHTML(b.String()); err != nil {
		return err
	}
	if err := a.list.SetAttr("data-filter", a.filter); err != nil {
		return err
	}
	return a.count.SetHTML(fmt.Sprintf("<b>%d</b> left", left))
}

func (a *todoApp) report(what string, err error) {
	if err != nil {
		a.logger.Error(what, zap.Error(err))
	}
}

func (a *todoApp) onAdd(webplatform.Event) {
	title, _, err := a.title.Prop("value")
	if err != nil {
		a.report("read title", err)
		return
	}
	a.report("add", a.add(title))
	a.report("clear title", a.title.SetProp("value", ""))
	a.report("focus title", a.title.Focus())
}

func (a *todoApp) onToggle(e webplatform.Event) {
	if e.Target == nil {
		return
	}
	id, ok, err := e.Target.Data("id")
	if err != nil || !ok {
		a.report("read item id", err)
		return
	}
	a.report("toggle", a.toggle(id))
}

func (a *todoApp) onClear(webplatform.Event) {
	a.report("clear done", a.clearDone())
}

func (a *todoApp) onHash(webplatform.Event) {
	hash, err := a.s.LocationHash()
	if err != nil {
		a.report("read hash", err)
		return
	}
	a.filter = strings.TrimPrefix(hash, "#")
	a.report("filter", a.render())
}
