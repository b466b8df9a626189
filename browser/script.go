package browser

import (
	"encoding/json"
	"strings"
)

// ReadyStateScript returns document.readyState.
const ReadyStateScript = `() => document.readyState`

const markupPlaceholder = "__AUTOFILL_MARKUP__"

// insertRichTemplate takes the target element as its only argument. It
// prefers the TinyMCE API, then contenteditable, then a plain value.
const insertRichTemplate = `(el) => {
  const markup = __AUTOFILL_MARKUP__;
  const fire = (t) => {
    t.dispatchEvent(new Event("input", { bubbles: true }));
    t.dispatchEvent(new Event("change", { bubbles: true }));
  };
  const tiny = window.tinymce || window.tinyMCE;
  if (tiny && typeof tiny.get === "function") {
    const editors = [].concat(tiny.get() || []);
    const owns = (e) => {
      const target = e.getElement && e.getElement();
      const body = e.getBody && e.getBody();
      const frame = e.iframeElement;
      return target === el || body === el || frame === el ||
        (target && el.contains && el.contains(target)) ||
        (frame && el.contains && el.contains(frame));
    };
    const ed = editors.find(owns) || (editors.length === 1 ? editors[0] : null);
    if (ed) {
      ed.setContent(markup);
      if (ed.save) ed.save();
      if (ed.fire) ed.fire("change");
      return { ok: true, mode: "tinymce" };
    }
  }
  if (el.isContentEditable) {
    el.innerHTML = markup;
    fire(el);
    return { ok: true, mode: "contenteditable" };
  }
  if (el.tagName === "TEXTAREA" || el.tagName === "INPUT") {
    el.value = markup;
    fire(el);
    return { ok: true, mode: "value" };
  }
  return { ok: false, reason: "element " + el.tagName + " is not an editor" };
}`

// InsertRichScript returns a function of one element argument that hands
// markup to the element's editor. markup is embedded as a JSON string
// literal, never concatenated as code.
func InsertRichScript(markup string) string {
	lit, _ := json.Marshal(markup)
	return strings.Replace(insertRichTemplate, markupPlaceholder, string(lit), 1)
}

// InsertOutcome is what the insert script returns.
type InsertOutcome struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Reason string `json:"reason,omitempty"`
}
