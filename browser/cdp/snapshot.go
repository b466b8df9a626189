package cdp

// snapshotScript tags interactive and structural elements with
// data-autofill-ref and returns them as a JSON string. Refs carry the
// snapshot sequence so refs from an older capture no longer resolve.
const snapshotScript = `(seq) => {
  const RefAttr = "data-autofill-ref";
  document.querySelectorAll("[" + RefAttr + "]").forEach((el) => el.removeAttribute(RefAttr));

  const roleOf = (el) => {
    const explicit = el.getAttribute("role");
    if (explicit) return explicit;
    const tag = el.tagName.toLowerCase();
    if (/^h[1-6]$/.test(tag)) return "heading";
    if (tag === "a") return "link";
    if (tag === "button") return "button";
    if (tag === "textarea") return "textbox";
    if (tag === "select") return "combobox";
    if (tag === "iframe") return "iframe";
    if (tag === "input") {
      const type = (el.getAttribute("type") || "text").toLowerCase();
      if (["submit", "button", "reset", "image"].includes(type)) return "button";
      if (type === "checkbox") return "checkbox";
      if (type === "radio") return "radio";
      if (type === "hidden") return "";
      return "textbox";
    }
    if (el.isContentEditable) return "textbox";
    return "";
  };

  const text = (s) => (s || "").replace(/\s+/g, " ").trim().slice(0, 200);

  const nameOf = (el) => {
    const aria = el.getAttribute("aria-label");
    if (aria) return text(aria);
    const by = el.getAttribute("aria-labelledby");
    if (by) {
      const ref = document.getElementById(by.split(" ")[0]);
      if (ref) return text(ref.innerText);
    }
    if (el.labels && el.labels.length) return text(el.labels[0].innerText);
    const tag = el.tagName.toLowerCase();
    if (tag === "input" && ["submit", "button"].includes((el.type || "").toLowerCase())) return text(el.value);
    if (tag === "iframe") return text(el.title);
    if (tag === "textarea" || tag === "input") return text(el.placeholder || el.title);
    return text(el.innerText || el.title);
  };

  const valueOf = (el) => {
    const tag = el.tagName.toLowerCase();
    if (tag === "textarea" || tag === "input" || tag === "select") return el.value || "";
    if (tag === "iframe") {
      try {
        return el.contentDocument && el.contentDocument.body ? el.contentDocument.body.innerHTML : "";
      } catch (e) {
        return "";
      }
    }
    if (el.isContentEditable) return el.innerHTML;
    return "";
  };

  const visible = (el) => {
    if (el.tagName.toLowerCase() === "textarea") return true;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };

  const keep = ["id", "name", "type", "placeholder", "aria-label", "title", "href"];
  const selector = "a[href], button, input, textarea, select, iframe, h1, h2, h3, h4, h5, h6, [role], [contenteditable='true']";
  const out = [];
  let n = 0;
  document.querySelectorAll(selector).forEach((el) => {
    const role = roleOf(el);
    if (!role || !visible(el)) return;
    const ref = "s" + seq + "_e" + n++;
    el.setAttribute(RefAttr, ref);
    const attrs = {};
    keep.forEach((k) => {
      const v = el.getAttribute(k);
      if (v) attrs[k] = v;
    });
    out.push({ ref: ref, role: role, name: nameOf(el), value: valueOf(el), attrs: attrs });
  });
  return JSON.stringify(out);
}`
