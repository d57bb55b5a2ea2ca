package browser

// resolveJS evaluates a locator chain. Each step is {k:"sel", groups:[{css,
// hasText, text}]}, {k:"nth", n}, {k:"parent"} or {k:"next"}; the result is the matched
// elements in document order.
const resolveJS = `function(steps) {
	const norm = s => (s || '').replace(/\s+/g, ' ').trim().toLowerCase();
	const text = e => norm(e.innerText !== undefined ? e.innerText : e.textContent);
	let cur = null;
	for (const s of steps) {
		if (s.k === 'sel') {
			const seen = new Set();
			const out = [];
			for (const base of (cur === null ? [document] : cur)) {
				for (const g of s.groups) {
					let found = Array.from(base.querySelectorAll(g.css));
					for (const t of (g.hasText || [])) {
						const n = norm(t);
						found = found.filter(e => text(e).includes(n));
					}
					for (const t of (g.text || [])) {
						const n = norm(t);
						found = found.filter(e => text(e).includes(n) &&
							!Array.from(e.children).some(c => text(c).includes(n)));
					}
					for (const e of found) {
						if (!seen.has(e)) { seen.add(e); out.push(e); }
					}
				}
			}
			out.sort((a, b) => a === b ? 0 :
				(a.compareDocumentPosition(b) & Node.DOCUMENT_POSITION_FOLLOWING) ? -1 : 1);
			cur = out;
		} else if (s.k === 'nth') {
			cur = (cur !== null && s.n >= 0 && s.n < cur.length) ? [cur[s.n]] : [];
		} else if (s.k === 'parent') {
			const p = (cur && cur.length) ? cur[0].parentElement : null;
			cur = p ? [p] : [];
		} else if (s.k === 'next') {
			const n = (cur && cur.length) ? cur[0].nextElementSibling : null;
			cur = n ? [n] : [];
		}
	}
	return cur || [];
}`

// describeJS snapshots the element bound to this.
const describeJS = `function(interactive) {
	const cs = getComputedStyle(this);
	const r = this.getBoundingClientRect();
	const z = parseInt(cs.zIndex, 10);
	return JSON.stringify({
		tag: this.tagName.toLowerCase(),
		id: this.id || '',
		classes: Array.from(this.classList),
		text: (this.innerText || '').slice(0, 5000),
		position: cs.position,
		zIndex: isNaN(z) ? 0 : z,
		width: r.width,
		height: r.height,
		interactive: this.querySelectorAll(interactive).length,
		visible: r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none'
	});
}`

const boxJS = `function() {
	const r = this.getBoundingClientRect();
	const cs = getComputedStyle(this);
	const ok = r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none';
	return JSON.stringify({x: r.x, y: r.y, width: r.width, height: r.height, ok: ok});
}`

const checkedJS = `function() {
	if (typeof this.checked === 'boolean' && (this.type === 'checkbox' || this.type === 'radio')) {
		return this.checked;
	}
	return this.getAttribute('aria-checked') === 'true';
}`

const innerHTMLJS = `function() { return this.innerHTML; }`

const forceClickJS = `function() { this.click(); }`

const scrollBottomJS = `function() { this.scrollTop = this.scrollHeight; }`

const locationJS = `() => location.href`

// shadowRootsJS lists open shadow roots of the document.
const shadowRootsJS = `() => {
	const out = [];
	for (const el of document.querySelectorAll('*')) {
		if (!el.shadowRoot) continue;
		out.push({
			host: el.tagName.toLowerCase(),
			html: el.shadowRoot.innerHTML,
			text: (el.shadowRoot.textContent || '').replace(/\s+/g, ' ').trim()
		});
	}
	return JSON.stringify(out);
}`

// hideWebdriverJS is a plain script, run before any page script.
const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`
