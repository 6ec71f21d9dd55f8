// File: internal/submit/script.go
// In-page scripts for the submission chain.
package submit

import "strconv"

const popupSelector = `[class*="popup"],[class*="modal"],[class*="overlay"],[class*="dialog"],[role="dialog"],[aria-modal="true"]`

// cssPathHelper is shared by scripts that need to hand a selector back to Go.
const cssPathHelper = `const cssPath = (el) => {
	if (el.id) return '#' + CSS.escape(el.id);
	const parts = [];
	let node = el;
	while (node && node.nodeType === Node.ELEMENT_NODE && node !== document.body && node !== document.documentElement) {
		let part = node.nodeName.toLowerCase();
		const parent = node.parentElement;
		if (parent) {
			const siblings = Array.from(parent.children).filter(c => c.nodeName === node.nodeName);
			if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
		}
		parts.unshift(part);
		node = parent;
	}
	return parts.join(' > ');
};`

// injectValueScript sets the element's value through the native setter and
// dispatches synthetic input/change events, which is what framework-bound
// inputs (React, Vue) listen to.
func injectValueScript(selector, value string) string {
	return `(() => {
	const el = document.querySelector(` + strconv.Quote(selector) + `);
	if (!el) return false;
	const proto = Object.getPrototypeOf(el);
	const desc = Object.getOwnPropertyDescriptor(proto, 'value') ||
		Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value');
	if (desc && desc.set) { desc.set.call(el, ` + strconv.Quote(value) + `); } else { el.value = ` + strconv.Quote(value) + `; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`
}

// scriptClickScript invokes the element's click() from page context, which
// sidesteps overlay interception of trusted pointer events.
func scriptClickScript(selector string) string {
	return `(() => {
	const el = document.querySelector(` + strconv.Quote(selector) + `);
	if (!el) return false;
	el.click();
	return true;
})()`
}

// findSubmitScript locates a submit control, preferring the candidate's own
// form, then popup containers, then the whole page. Returns a selector or "".
func findSubmitScript(formSelector string) string {
	return `(() => {
	` + cssPathHelper + `
	const byText = /subscribe|sign\s*up|submit|join|notify|send|go/i;
	const submitIn = (root) => {
		if (!root) return null;
		const explicit = root.querySelector('button[type="submit"],input[type="submit"]');
		if (explicit) return explicit;
		for (const b of root.querySelectorAll('button')) {
			if (!b.getAttribute('type') || b.getAttribute('type') === 'submit' || byText.test(b.textContent || '')) return b;
		}
		for (const i of root.querySelectorAll('input[type="button"]')) {
			if (byText.test(i.value || '')) return i;
		}
		return null;
	};
	let el = null;
	const formSel = ` + strconv.Quote(formSelector) + `;
	if (formSel) el = submitIn(document.querySelector(formSel));
	if (!el) {
		for (const c of document.querySelectorAll('` + popupSelector + `')) {
			el = submitIn(c);
			if (el) break;
		}
	}
	if (!el) el = submitIn(document);
	return el ? cssPath(el) : '';
})()`
}

// dismissOverlaysScript clicks close controls inside popup containers and
// returns how many it hit.
const dismissOverlaysScript = `(() => {
	let clicked = 0;
	const closeSel = '[class*="close"],[aria-label*="close" i],button[title*="close" i]';
	for (const c of document.querySelectorAll('` + popupSelector + `')) {
		const btn = c.querySelector(closeSel);
		if (btn) { btn.click(); clicked++; }
	}
	return clicked;
})()`
