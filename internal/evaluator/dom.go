package evaluator

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// reflected lists attributes exposed as plain string properties on elements.
var reflected = []string{"href", "src", "type", "name", "placeholder", "alt", "title", "rel", "for", "action", "method"}

// document exposes a parsed HTML tree to a runtime. Wrappers are cached per
// node, so the same element always yields the same object.
type document struct {
	vm     *goja.Runtime
	logger *slog.Logger
	doc    *goquery.Document
	body   *html.Node
	window *html.Node

	objs      map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	listeners map[*html.Node]map[string][]goja.Value
	selectors map[string]cascadia.Selector
}

func parseDocument(source string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(source))
}

func newDocument(vm *goja.Runtime, doc *goquery.Document, logger *slog.Logger) *document {
	d := &document{
		vm:        vm,
		logger:    logger,
		doc:       doc,
		window:    &html.Node{Type: html.DocumentNode},
		objs:      make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		listeners: make(map[*html.Node]map[string][]goja.Value),
		selectors: make(map[string]cascadia.Selector),
	}
	if body := doc.Find("body"); body.Length() > 0 {
		d.body = body.Get(0)
	}
	return d
}

// install binds document, window and friends as globals.
func (d *document) install() {
	global := d.vm.GlobalObject()
	_ = global.Set("document", d.wrap(d.root()))
	_ = global.Set("window", global)
	_ = global.Set("self", global)
	_ = global.Set("addEventListener", d.addListener(d.window))
	_ = global.Set("removeEventListener", d.removeListener(d.window))
}

func (d *document) root() *html.Node {
	return d.doc.Selection.Get(0)
}

// scripts returns the text of every inline script in document order.
func (d *document) scripts() []string {
	var out []string
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			d.logger.Debug("Skipping external script", "src", src)
			return
		}
		switch t, _ := s.Attr("type"); strings.ToLower(t) {
		case "", "text/javascript", "application/javascript", "module":
			out = append(out, s.Text())
		}
	})
	return out
}

// loaded fires DOMContentLoaded on the document and load on the window.
func (d *document) loaded() {
	d.fire(d.root(), "DOMContentLoaded", d.event("DOMContentLoaded", d.wrap(d.root())))
	d.fire(d.window, "load", d.event("load", d.vm.GlobalObject()))
	if onload, ok := goja.AssertFunction(d.vm.Get("onload")); ok {
		if _, err := onload(d.vm.GlobalObject(), d.event("load", d.vm.GlobalObject())); err != nil {
			d.logger.Warn("window.onload failed", "error", err)
		}
	}
}

func (d *document) throw(msg string) {
	panic(d.vm.NewTypeError("%s", msg))
}

// node unwraps a value produced by wrap.
func (d *document) node(v goja.Value) *html.Node {
	if obj, ok := v.(*goja.Object); ok {
		if n, ok := d.nodes[obj]; ok {
			return n
		}
	}
	d.throw("parameter is not of type 'Node'")
	return nil
}

func (d *document) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.objs[n]; ok {
		return obj
	}

	obj := d.vm.NewObject()
	d.objs[n] = obj
	d.nodes[obj] = n

	d.nodeProps(obj, n)
	switch n.Type {
	case html.ElementNode:
		d.elementProps(obj, n)
	case html.DocumentNode:
		d.documentProps(obj, n)
	case html.TextNode, html.CommentNode:
		d.accessor(obj, "data", func() any { return n.Data }, func(v goja.Value) { n.Data = v.String() })
		d.accessor(obj, "nodeValue", func() any { return n.Data }, func(v goja.Value) { n.Data = v.String() })
	}
	return obj
}

func (d *document) list(ns []*html.Node) goja.Value {
	items := make([]any, len(ns))
	for i, n := range ns {
		items[i] = d.wrap(n)
	}
	arr := d.vm.NewArray(items...)
	_ = arr.Set("item", func(i int) goja.Value {
		if i < 0 || i >= len(ns) {
			return goja.Null()
		}
		return d.wrap(ns[i])
	})
	return arr
}

func (d *document) accessor(obj *goja.Object, name string, get func() any, set func(goja.Value)) {
	getter := d.vm.ToValue(func(goja.FunctionCall) goja.Value { return d.vm.ToValue(get()) })
	var setter goja.Value
	if set != nil {
		setter = d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (d *document) method(obj *goja.Object, name string, fn func(call goja.FunctionCall) goja.Value) {
	_ = obj.DefineDataProperty(name, d.vm.ToValue(fn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (d *document) nodeProps(obj *goja.Object, n *html.Node) {
	d.accessor(obj, "nodeType", func() any { return nodeType(n) }, nil)
	d.accessor(obj, "nodeName", func() any { return nodeName(n) }, nil)
	d.accessor(obj, "parentNode", func() any { return d.wrap(n.Parent) }, nil)
	d.accessor(obj, "parentElement", func() any {
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return d.wrap(n.Parent)
		}
		return goja.Null()
	}, nil)
	d.accessor(obj, "childNodes", func() any { return d.list(children(n, false)) }, nil)
	d.accessor(obj, "children", func() any { return d.list(children(n, true)) }, nil)
	d.accessor(obj, "childElementCount", func() any { return len(children(n, true)) }, nil)
	d.accessor(obj, "firstChild", func() any { return d.wrap(n.FirstChild) }, nil)
	d.accessor(obj, "lastChild", func() any { return d.wrap(n.LastChild) }, nil)
	d.accessor(obj, "nextSibling", func() any { return d.wrap(n.NextSibling) }, nil)
	d.accessor(obj, "previousSibling", func() any { return d.wrap(n.PrevSibling) }, nil)
	d.accessor(obj, "firstElementChild", func() any { return d.wrap(firstElement(n.FirstChild, next)) }, nil)
	d.accessor(obj, "lastElementChild", func() any { return d.wrap(firstElement(n.LastChild, prev)) }, nil)
	d.accessor(obj, "nextElementSibling", func() any { return d.wrap(firstElement(n.NextSibling, next)) }, nil)
	d.accessor(obj, "previousElementSibling", func() any { return d.wrap(firstElement(n.PrevSibling, prev)) }, nil)
	d.accessor(obj, "textContent", func() any {
		if n.Type == html.DocumentNode {
			return goja.Null()
		}
		return goquery.NewDocumentFromNode(n).Text()
	}, func(v goja.Value) { d.setText(n, v.String()) })

	d.method(obj, "appendChild", func(call goja.FunctionCall) goja.Value {
		child := d.node(call.Argument(0))
		detach(child)
		n.AppendChild(child)
		return call.Argument(0)
	})
	d.method(obj, "append", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			if obj, ok := arg.(*goja.Object); ok && d.nodes[obj] != nil {
				child := d.nodes[obj]
				detach(child)
				n.AppendChild(child)
				continue
			}
			n.AppendChild(&html.Node{Type: html.TextNode, Data: arg.String()})
		}
		return goja.Undefined()
	})
	d.method(obj, "removeChild", func(call goja.FunctionCall) goja.Value {
		child := d.node(call.Argument(0))
		if child.Parent != n {
			d.throw("The node to be removed is not a child of this node.")
		}
		n.RemoveChild(child)
		return call.Argument(0)
	})
	d.method(obj, "insertBefore", func(call goja.FunctionCall) goja.Value {
		child := d.node(call.Argument(0))
		detach(child)
		if ref := call.Argument(1); defined(ref) {
			refNode := d.node(ref)
			if refNode.Parent != n {
				d.throw("The node before which the new node is to be inserted is not a child of this node.")
			}
			n.InsertBefore(child, refNode)
		} else {
			n.AppendChild(child)
		}
		return call.Argument(0)
	})
	d.method(obj, "contains", func(call goja.FunctionCall) goja.Value {
		other := call.Argument(0)
		if !defined(other) {
			return d.vm.ToValue(false)
		}
		for c := d.node(other); c != nil; c = c.Parent {
			if c == n {
				return d.vm.ToValue(true)
			}
		}
		return d.vm.ToValue(false)
	})
	d.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		return d.wrap(d.queryFirst(n, call.Argument(0).String()))
	})
	d.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return d.list(d.queryAll(n, call.Argument(0).String()))
	})
	d.method(obj, "getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return d.list(descendants(n, func(c *html.Node) bool {
			return tag == "*" || c.Data == tag
		}))
	})
	d.method(obj, "getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		want := strings.Fields(call.Argument(0).String())
		return d.list(descendants(n, func(c *html.Node) bool {
			have := strings.Fields(attr(c, "class"))
			for _, w := range want {
				if !containsString(have, w) {
					return false
				}
			}
			return len(want) > 0
		}))
	})
	d.method(obj, "addEventListener", d.addListener(n))
	d.method(obj, "removeEventListener", d.removeListener(n))
	d.method(obj, "dispatchEvent", func(call goja.FunctionCall) goja.Value {
		evt := call.Argument(0).ToObject(d.vm)
		d.dispatch(n, evt)
		return d.vm.ToValue(!evt.Get("defaultPrevented").ToBoolean())
	})
}

func (d *document) elementProps(obj *goja.Object, n *html.Node) {
	d.accessor(obj, "tagName", func() any { return strings.ToUpper(n.Data) }, nil)
	d.accessor(obj, "localName", func() any { return n.Data }, nil)
	d.accessor(obj, "id", func() any { return attr(n, "id") }, func(v goja.Value) { setAttr(n, "id", v.String()) })
	d.accessor(obj, "className", func() any { return attr(n, "class") }, func(v goja.Value) { setAttr(n, "class", v.String()) })
	d.accessor(obj, "innerText", func() any { return goquery.NewDocumentFromNode(n).Text() }, func(v goja.Value) { d.setText(n, v.String()) })
	d.accessor(obj, "innerHTML", func() any {
		out, err := goquery.NewDocumentFromNode(n).Html()
		if err != nil {
			panic(d.vm.NewGoError(err))
		}
		return out
	}, func(v goja.Value) { d.setInnerHTML(n, v.String()) })
	d.accessor(obj, "outerHTML", func() any {
		out, err := goquery.OuterHtml(goquery.NewDocumentFromNode(n).Selection)
		if err != nil {
			panic(d.vm.NewGoError(err))
		}
		return out
	}, nil)
	d.accessor(obj, "value", func() any {
		if n.Data == "textarea" {
			return goquery.NewDocumentFromNode(n).Text()
		}
		return attr(n, "value")
	}, func(v goja.Value) {
		if n.Data == "textarea" {
			d.setText(n, v.String())
			return
		}
		setAttr(n, "value", v.String())
	})
	d.accessor(obj, "checked", func() any { return hasAttr(n, "checked") }, func(v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, "checked", "")
		} else {
			removeAttr(n, "checked")
		}
	})
	for _, name := range reflected {
		name := name
		d.accessor(obj, name, func() any { return attr(n, name) }, func(v goja.Value) { setAttr(n, name, v.String()) })
	}

	var style *goja.Object
	d.accessor(obj, "style", func() any {
		if style == nil {
			style = d.vm.NewObject()
			for _, decl := range strings.Split(attr(n, "style"), ";") {
				prop, val, ok := strings.Cut(decl, ":")
				if !ok {
					continue
				}
				_ = style.Set(camel(strings.TrimSpace(prop)), strings.TrimSpace(val))
			}
		}
		return style
	}, nil)
	d.accessor(obj, "classList", func() any { return d.classList(n) }, nil)

	d.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		name := strings.ToLower(call.Argument(0).String())
		if !hasAttr(n, name) {
			return goja.Null()
		}
		return d.vm.ToValue(attr(n, name))
	})
	d.method(obj, "setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
		return goja.Undefined()
	})
	d.method(obj, "removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, strings.ToLower(call.Argument(0).String()))
		return goja.Undefined()
	})
	d.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(hasAttr(n, strings.ToLower(call.Argument(0).String())))
	})
	d.method(obj, "matches", func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(d.selector(call.Argument(0).String()).Match(n))
	})
	d.method(obj, "closest", func(call goja.FunctionCall) goja.Value {
		sel := d.selector(call.Argument(0).String())
		for c := n; c != nil; c = c.Parent {
			if c.Type == html.ElementNode && sel.Match(c) {
				return d.wrap(c)
			}
		}
		return goja.Null()
	})
	d.method(obj, "remove", func(goja.FunctionCall) goja.Value {
		detach(n)
		return goja.Undefined()
	})
	d.method(obj, "click", func(goja.FunctionCall) goja.Value {
		d.dispatch(n, d.event("click", obj))
		return goja.Undefined()
	})
	d.method(obj, "focus", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	d.method(obj, "blur", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
}

func (d *document) documentProps(obj *goja.Object, n *html.Node) {
	d.accessor(obj, "body", func() any { return d.wrap(d.body) }, nil)
	d.accessor(obj, "head", func() any { return d.wrap(d.queryFirst(n, "head")) }, nil)
	d.accessor(obj, "documentElement", func() any { return d.wrap(d.queryFirst(n, "html")) }, nil)
	d.accessor(obj, "readyState", func() any { return "complete" }, nil)
	d.accessor(obj, "title", func() any {
		if t := d.queryFirst(n, "title"); t != nil {
			return strings.TrimSpace(goquery.NewDocumentFromNode(t).Text())
		}
		return ""
	}, nil)

	d.method(obj, "getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		found := descendants(n, func(c *html.Node) bool { return attr(c, "id") == id })
		if len(found) == 0 {
			return goja.Null()
		}
		return d.wrap(found[0])
	})
	d.method(obj, "createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		return d.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
	})
	d.method(obj, "createTextNode", func(call goja.FunctionCall) goja.Value {
		return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	d.method(obj, "createEvent", func(call goja.FunctionCall) goja.Value {
		return d.event("", goja.Null())
	})
}

func (d *document) classList(n *html.Node) *goja.Object {
	list := d.vm.NewObject()
	update := func(fn func([]string) []string) {
		setAttr(n, "class", strings.Join(fn(strings.Fields(attr(n, "class"))), " "))
	}
	_ = list.Set("contains", func(name string) bool {
		return containsString(strings.Fields(attr(n, "class")), name)
	})
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		update(func(have []string) []string {
			for _, arg := range call.Arguments {
				if name := arg.String(); !containsString(have, name) {
					have = append(have, name)
				}
			}
			return have
		})
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		update(func(have []string) []string {
			out := have[:0]
			for _, c := range have {
				drop := false
				for _, arg := range call.Arguments {
					if arg.String() == c {
						drop = true
					}
				}
				if !drop {
					out = append(out, c)
				}
			}
			return out
		})
		return goja.Undefined()
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		present := containsString(strings.Fields(attr(n, "class")), name)
		want := !present
		if force := call.Argument(1); defined(force) {
			want = force.ToBoolean()
		}
		update(func(have []string) []string {
			out := have[:0]
			for _, c := range have {
				if c != name {
					out = append(out, c)
				}
			}
			if want {
				out = append(out, name)
			}
			return out
		})
		return d.vm.ToValue(want)
	})
	length := d.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.vm.ToValue(len(strings.Fields(attr(n, "class"))))
	})
	_ = list.DefineAccessorProperty("length", length, nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return list
}

func (d *document) selector(sel string) cascadia.Selector {
	if s, ok := d.selectors[sel]; ok {
		return s
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		panic(d.vm.NewTypeError("'%s' is not a valid selector", sel))
	}
	d.selectors[sel] = s
	return s
}

// queryFirst and queryAll search descendants only, never n itself.
func (d *document) queryFirst(n *html.Node, sel string) *html.Node {
	s := d.selector(sel)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := s.MatchFirst(c); m != nil {
			return m
		}
	}
	return nil
}

func (d *document) queryAll(n *html.Node, sel string) []*html.Node {
	s := d.selector(sel)
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, s.MatchAll(c)...)
	}
	return out
}

func (d *document) setText(n *html.Node, s string) {
	removeChildren(n)
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

func (d *document) setInnerHTML(n *html.Node, markup string) {
	context := n
	if n.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	parsed, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		panic(d.vm.NewGoError(err))
	}
	removeChildren(n)
	for _, c := range parsed {
		detach(c)
		n.AppendChild(c)
	}
}

// Events.

func (d *document) event(typ string, target goja.Value) *goja.Object {
	evt := d.vm.NewObject()
	_ = evt.Set("type", typ)
	_ = evt.Set("target", target)
	_ = evt.Set("bubbles", true)
	_ = evt.Set("defaultPrevented", false)
	_ = evt.Set("initEvent", func(call goja.FunctionCall) goja.Value {
		_ = evt.Set("type", call.Argument(0).String())
		return goja.Undefined()
	})
	_ = evt.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		_ = evt.Set("defaultPrevented", true)
		return goja.Undefined()
	})
	_ = evt.Set("stopPropagation", func(goja.FunctionCall) goja.Value {
		_ = evt.Set("__stopped", true)
		return goja.Undefined()
	})
	return evt
}

func (d *document) addListener(n *html.Node) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn := call.Argument(1)
		if _, ok := goja.AssertFunction(fn); !ok {
			return goja.Undefined()
		}
		if d.listeners[n] == nil {
			d.listeners[n] = make(map[string][]goja.Value)
		}
		d.listeners[n][typ] = append(d.listeners[n][typ], fn)
		return goja.Undefined()
	}
}

func (d *document) removeListener(n *html.Node) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		fn := call.Argument(1)
		kept := d.listeners[n][typ][:0]
		for _, l := range d.listeners[n][typ] {
			if !l.SameAs(fn) {
				kept = append(kept, l)
			}
		}
		if d.listeners[n] != nil {
			d.listeners[n][typ] = kept
		}
		return goja.Undefined()
	}
}

// dispatch delivers evt to n and then bubbles it to n's ancestors.
func (d *document) dispatch(n *html.Node, evt *goja.Object) {
	typ := evt.Get("type").String()
	if !defined(evt.Get("target")) {
		_ = evt.Set("target", d.wrap(n))
	}
	for c := n; c != nil; c = c.Parent {
		d.fire(c, typ, evt)
		if evt.Get("__stopped") != nil && evt.Get("__stopped").ToBoolean() {
			return
		}
		if obj, ok := d.objs[c]; ok {
			if handler, ok := goja.AssertFunction(obj.Get("on" + typ)); ok {
				if _, err := handler(obj, evt); err != nil {
					d.logger.Warn("Event handler failed", "event", typ, "error", err)
				}
			}
		}
	}
}

// fire calls listeners registered on n. A failing listener is reported and
// does not stop the others.
func (d *document) fire(n *html.Node, typ string, arg goja.Value) {
	var this goja.Value = goja.Undefined()
	if n == d.window {
		this = d.vm.GlobalObject()
	} else {
		this = d.wrap(n)
	}
	if obj, ok := arg.(*goja.Object); ok {
		_ = obj.Set("currentTarget", this)
	} else {
		arg = d.event(typ, this)
	}
	for _, l := range append([]goja.Value(nil), d.listeners[n][typ]...) {
		fn, _ := goja.AssertFunction(l)
		if _, err := fn(this, arg); err != nil {
			d.logger.Warn("Event listener failed", "event", typ, "error", err)
		}
	}
}

// Tree helpers.

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return n.Data
}

func children(n *html.Node, elementsOnly bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !elementsOnly || c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func next(n *html.Node) *html.Node { return n.NextSibling }
func prev(n *html.Node) *html.Node { return n.PrevSibling }

func firstElement(n *html.Node, step func(*html.Node) *html.Node) *html.Node {
	for ; n != nil; n = step(n) {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

func descendants(n *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && keep(c) {
				out = append(out, c)
			}
			visit(c)
		}
	}
	visit(n)
	return out
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// camel turns a CSS property name into its style object key.
func camel(prop string) string {
	parts := strings.Split(prop, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
