// File: internal/probe/script.go
// In-page scripts for the detection protocol. Everything runs inside the
// target page via the driver's evaluate capability; the engine only consumes
// the JSON results.
package probe

// popupSelector matches the overlay containers third-party capture widgets
// typically render into.
const popupSelector = `[class*="popup"],[class*="modal"],[class*="overlay"],[class*="dialog"],[role="dialog"],[aria-modal="true"]`

// installObserverScript registers a mutation observer once per probe run. It
// counts form and email-input nodes inserted after load, which is how
// lazily-mounted capture widgets reveal themselves between phases.
const installObserverScript = `(() => {
	if (window.__optinreachMutations) return true;
	const state = { forms: 0, emailInputs: 0 };
	window.__optinreachMutations = state;
	const emailish = (el) => {
		if (el.matches && el.matches('input[type="email"]')) return true;
		const hint = ((el.getAttribute && (el.getAttribute('name') || '')) + ' ' +
			(el.id || '') + ' ' +
			((el.getAttribute && el.getAttribute('placeholder')) || '')).toLowerCase();
		return hint.includes('email') || hint.includes('e-mail');
	};
	const obs = new MutationObserver((muts) => {
		for (const m of muts) {
			for (const n of m.addedNodes) {
				if (!(n instanceof Element)) continue;
				if (n.matches('form') || n.querySelector('form')) state.forms++;
				if (n.matches('input')) {
					if (emailish(n)) state.emailInputs++;
				} else if (n.querySelector) {
					for (const inp of n.querySelectorAll('input')) {
						if (emailish(inp)) { state.emailInputs++; break; }
					}
				}
			}
		}
	});
	obs.observe(document.documentElement, { childList: true, subtree: true });
	return true;
})()`

// readObserverScript returns the cumulative mutation counters.
const readObserverScript = `window.__optinreachMutations || { forms: 0, emailInputs: 0 }`

// scanScript inspects the current DOM for forms and categorized email-input
// candidates, deduplicated by element identity. Category names must stay in
// sync with the candidate categories on the Go side.
const scanScript = `(() => {
	const seen = new Set();
	const out = { formCount: 0, candidates: [] };
	out.formCount = document.querySelectorAll('form').length;

	const isVisible = (el) => {
		const st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};

	const cssPath = (el) => {
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
	};

	const popupSel = '` + popupSelector + `';
	const textInputs = 'input[type="text"],input[type="email"],input:not([type])';
	const emailish = (s) => {
		s = (s || '').toLowerCase();
		return s.includes('email') || s.includes('e-mail');
	};
	const newsletterish = (s) => {
		s = (s || '').toLowerCase();
		return s.includes('newsletter') || s.includes('subscribe') || s.includes('signup') || s.includes('sign-up');
	};

	const add = (el, category) => {
		if (seen.has(el)) return;
		seen.add(el);
		const form = el.closest('form');
		out.candidates.push({
			selector: cssPath(el),
			category: category,
			visible: isVisible(el),
			id: el.id || '',
			name: el.getAttribute('name') || '',
			placeholder: el.getAttribute('placeholder') || '',
			inForm: !!form,
			formSelector: form ? cssPath(form) : '',
			inPopup: !!el.closest(popupSel),
			inFooter: !!el.closest('footer,[class*="footer"]'),
		});
	};

	document.querySelectorAll('input[type="email"]').forEach(el => add(el, 'email_type'));
	document.querySelectorAll(textInputs).forEach(el => {
		if (emailish(el.getAttribute('name')) || emailish(el.id)) add(el, 'name_match');
	});
	document.querySelectorAll(textInputs).forEach(el => {
		if (emailish(el.getAttribute('placeholder'))) add(el, 'placeholder_match');
	});
	document.querySelectorAll(popupSel).forEach(c => {
		c.querySelectorAll(textInputs).forEach(el => add(el, 'popup_scoped'));
	});
	document.querySelectorAll('footer,[class*="footer"]').forEach(c => {
		c.querySelectorAll(textInputs).forEach(el => add(el, 'footer_scoped'));
	});
	document.querySelectorAll('form').forEach(f => {
		const hint = (f.className || '') + ' ' + (f.id || '') + ' ' + (f.getAttribute('action') || '');
		if (newsletterish(hint)) {
			f.querySelectorAll(textInputs).forEach(el => add(el, 'newsletter_scoped'));
		}
	});

	return out;
})()`
