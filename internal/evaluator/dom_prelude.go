package evaluator

import "github.com/dop251/goja"

// domPreludeSource is a small jQuery-shaped wrapper over the document bridge.
// Tests written against $ in the browser keep working.
const domPreludeSource = `
(function (global) {
  'use strict';

  var camel = function (prop) {
    return String(prop).replace(/-([a-z])/g, function (_, c) { return c.toUpperCase(); });
  };

  function Query(nodes) {
    this.length = nodes.length;
    for (var i = 0; i < nodes.length; i++) this[i] = nodes[i];
  }

  var toArray = function (list) {
    var out = [];
    if (!list) return out;
    for (var i = 0; i < list.length; i++) out.push(list[i]);
    return out;
  };

  var $ = function (selector, context) {
    if (typeof selector === 'function') {
      selector();
      return new Query([global.document]);
    }
    if (selector instanceof Query) return selector;
    if (selector === undefined || selector === null || selector === '') return new Query([]);
    if (typeof selector === 'string') {
      var s = selector.trim();
      if (s.charAt(0) === '<') {
        var holder = global.document.createElement('div');
        holder.innerHTML = s;
        return new Query(toArray(holder.childNodes).filter(function (n) { return n.nodeType === 1; }));
      }
      var root = context ? $(context)[0] : global.document;
      return new Query(toArray(root.querySelectorAll(s)));
    }
    if (Array.isArray(selector)) return new Query(selector);
    return new Query([selector]);
  };

  Query.prototype = {
    constructor: Query,
    each: function (fn) {
      for (var i = 0; i < this.length; i++) fn.call(this[i], i, this[i]);
      return this;
    },
    toArray: function () { return toArray(this); },
    get: function (i) { return i === undefined ? toArray(this) : this[i < 0 ? this.length + i : i]; },
    eq: function (i) { var n = this.get(i); return new Query(n ? [n] : []); },
    first: function () { return this.eq(0); },
    last: function () { return this.eq(-1); },
    find: function (sel) {
      var out = [];
      this.each(function () { out = out.concat(toArray(this.querySelectorAll(sel))); });
      return new Query(out);
    },
    filter: function (sel) {
      return new Query(toArray(this).filter(function (n) {
        return typeof sel === 'function' ? sel.call(n) : n.nodeType === 1 && n.matches(sel);
      }));
    },
    is: function (sel) { return this.filter(sel).length > 0; },
    children: function (sel) {
      var out = [];
      this.each(function () { out = out.concat(toArray(this.children)); });
      var q = new Query(out);
      return sel ? q.filter(sel) : q;
    },
    parent: function () {
      var out = [];
      this.each(function () { if (this.parentNode && out.indexOf(this.parentNode) < 0) out.push(this.parentNode); });
      return new Query(out);
    },
    text: function (value) {
      if (value === undefined) return toArray(this).map(function (n) { return n.textContent; }).join('');
      return this.each(function () { this.textContent = String(value); });
    },
    html: function (value) {
      if (value === undefined) return this.length ? this[0].innerHTML : undefined;
      return this.each(function () { this.innerHTML = String(value); });
    },
    val: function (value) {
      if (value === undefined) return this.length ? this[0].value : undefined;
      return this.each(function () { this.value = String(value); });
    },
    attr: function (name, value) {
      if (value === undefined) {
        if (!this.length) return undefined;
        var v = this[0].getAttribute(name);
        return v === null ? undefined : v;
      }
      return this.each(function () { this.setAttribute(name, String(value)); });
    },
    removeAttr: function (name) { return this.each(function () { this.removeAttribute(name); }); },
    css: function (prop, value) {
      if (value === undefined) return this.length ? (this[0].style[camel(prop)] || '') : undefined;
      return this.each(function () { this.style[camel(prop)] = String(value); });
    },
    hasClass: function (name) { return toArray(this).some(function (n) { return n.classList.contains(name); }); },
    addClass: function (name) { return this.each(function () { this.classList.add.apply(null, String(name).split(/\s+/)); }); },
    removeClass: function (name) { return this.each(function () { this.classList.remove.apply(null, String(name).split(/\s+/)); }); },
    toggleClass: function (name) { return this.each(function () { this.classList.toggle(name); }); },
    append: function (child) {
      var nodes = $(child);
      return this.each(function () { var el = this; nodes.each(function () { el.appendChild(this); }); });
    },
    remove: function () { return this.each(function () { this.remove(); }); },
    empty: function () { return this.each(function () { this.innerHTML = ''; }); },
    on: function (type, fn) { return this.each(function () { this.addEventListener(type, fn); }); },
    off: function (type, fn) { return this.each(function () { this.removeEventListener(type, fn); }); },
    trigger: function (type) {
      return this.each(function () {
        var evt = global.document.createEvent('Event');
        evt.initEvent(type);
        this.dispatchEvent(evt);
      });
    },
    click: function (fn) { return fn ? this.on('click', fn) : this.trigger('click'); },
    ready: function (fn) { fn(); return this; }
  };

  $.fn = Query.prototype;
  global.$ = global.jQuery = $;
})(this);
`

var domPreludeProgram = goja.MustCompile("dom-prelude.js", domPreludeSource, false)
