package scriptgen

import (
	"encoding/json"
	"fmt"

	"github.com/nickheyer/bookrule/internal/ruleast"
)

// Generate builds the in-page extraction script. list is nil for
// single-item field extraction (single=true output shape). fields maps
// output key -> AST node. rootFields, if non-nil, are evaluated once on
// the document and returned alongside the per-item `items` array.
func Generate(list ruleast.Node, fields map[string]ruleast.Node, rootFields map[string]ruleast.Node, purify []PurifyRule) (string, error) {
	payload := map[string]any{
		"fields": encodeNodeMap(fields),
		"purify": encodePurify(purify),
		"single": list == nil,
	}
	if list != nil {
		payload["list"] = encodeNode(list)
	}
	if rootFields != nil {
		payload["rootFields"] = encodeNodeMap(rootFields)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode extraction payload: %w", err)
	}

	return jsPrelude + "\nconst __PAYLOAD = " + string(data) + ";\nreturn __run(__PAYLOAD);\n", nil
}

func encodeNodeMap(fields map[string]ruleast.Node) map[string]any {
	out := make(map[string]any, len(fields))
	for k, n := range fields {
		out[k] = encodeNode(n)
	}
	return out
}

// jsPrelude is the fixed in-browser interpreter. It never throws for
// expected failure modes; it returns `{__error: message}` so the host
// side gets a precise message instead of a thrown exception crossing the
// evaluateJavaScript boundary.
const jsPrelude = `
function __applySlice(items, slice) {
	if (!slice) return items;
	const n = items.length;
	let step = slice.step === undefined ? 1 : slice.step;
	if (step === 0) return [];
	const norm = (i) => (i < 0 ? i + n : i);
	if (slice.single) {
		const idx = norm(slice.start);
		if (idx < 0 || idx >= n) return [];
		return [items[idx]];
	}
	let start, end;
	if (step > 0) {
		start = slice.start === undefined ? 0 : Math.min(Math.max(norm(slice.start), 0), n);
		end = slice.end === undefined ? n : Math.min(Math.max(norm(slice.end), 0), n);
	} else {
		start = slice.start === undefined ? n - 1 : Math.min(Math.max(norm(slice.start), -1), n - 1);
		end = slice.end === undefined ? -1 : Math.min(Math.max(norm(slice.end), -1), n - 1);
	}
	const out = [];
	if (step > 0) {
		for (let i = start; i < end; i += step) out.push(items[i]);
	} else {
		for (let i = start; i > end; i += step) if (i >= 0 && i < n) out.push(items[i]);
	}
	return out;
}

function __resolveAbs(val, attr) {
	if ((attr === "href" || attr === "src") && val) {
		try { return new URL(val, document.baseURI).href; } catch (e) { return val; }
	}
	return val;
}

function __nodesForSelector(sel, ctxNode) {
	const root = ctxNode || document;
	if (sel.selectorType === "css") {
		return Array.from(root.querySelectorAll(sel.expr));
	}
	if (sel.selectorType === "xpath") {
		const snap = document.evaluate(sel.expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		const out = [];
		for (let i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
		return out;
	}
	return [];
}

function __valueOfNode(node, attr) {
	if (!node) return "";
	if (attr === "text") return (node.textContent || "").trim();
	if (attr === "html") return node.innerHTML || "";
	if (attr === "outerHtml") return node.outerHTML || "";
	if (node.nodeType === Node.ATTRIBUTE_NODE) return node.value || "";
	if (typeof node.getAttribute === "function") return node.getAttribute(attr) || "";
	return "";
}

function __applyRegexReplace(strings_, rr) {
	if (!rr) return strings_;
	const re = new RegExp(rr.pattern, rr.firstOnly ? "" : "g");
	return strings_.map((s) => s.replace(re, rr.replacement));
}

function __mergeLists(op, lists) {
	if (op === "||") {
		for (const l of lists) if (l && l.length > 0) return l;
		return lists.length ? lists[lists.length - 1] : [];
	}
	if (op === "&&") {
		return [].concat(...lists);
	}
	if (op === "%%") {
		const out = [];
		const maxLen = Math.max(0, ...lists.map((l) => l.length));
		for (let i = 0; i < maxLen; i++) for (const l of lists) if (i < l.length) out.push(l[i]);
		return out;
	}
	return [];
}

// resolveNodesList resolves a node to an array of DOM nodes (css/xpath)
// or, for composite, merges child node-arrays by the operator.
function __resolveNodesList(node, ctxNode) {
	if (node.kind === "selector") {
		let items = __nodesForSelector(node, ctxNode);
		items = __applySlice(items, node.slice);
		return items;
	}
	if (node.kind === "composite") {
		const lists = node.children.map((c) => __resolveNodesList(c, ctxNode));
		return __mergeLists(node.op, lists);
	}
	return [];
}

// resolveValues resolves a node to an array of extracted string values.
function __resolveValues(node, ctxNode) {
	if (node.kind === "js") {
		try {
			const v = eval(node.code);
			if (Array.isArray(v)) return v.map(String);
			if (v === null || v === undefined) return [];
			return [String(v)];
		} catch (e) {
			return [];
		}
	}
	if (node.kind === "selector") {
		let items = __nodesForSelector(node, ctxNode);
		items = __applySlice(items, node.slice);
		let values = items.map((n) => __resolveAbs(__valueOfNode(n, node.attr), node.attr));
		values = __applyRegexReplace(values, node.regexReplace);
		return values;
	}
	if (node.kind === "composite") {
		if (node.op === "||") {
			let lastErr = null;
			for (const c of node.children) {
				try {
					const v = __resolveValues(c, ctxNode);
					if (v.length > 0) return v;
				} catch (e) {
					lastErr = e;
				}
			}
			if (lastErr) throw lastErr;
			return [];
		}
		const lists = node.children.map((c) => __resolveValues(c, ctxNode));
		return __mergeLists(node.op, lists);
	}
	return [];
}

function __purifyDoc(rules) {
	for (const r of rules || []) {
		if (r.kind === "css") {
			try { document.querySelectorAll(r.selector).forEach((e) => e.remove()); } catch (e) { return { __error: "invalid purify selector: " + r.selector }; }
			continue;
		}
		if (r.kind === "regex") {
			try {
				const re = new RegExp(r.pattern, "g");
				const walker = document.createTreeWalker(document.body || document, NodeFilter.SHOW_TEXT, {
					acceptNode: (n) => {
						const tag = n.parentNode && n.parentNode.tagName;
						if (tag === "SCRIPT" || tag === "STYLE" || tag === "NOSCRIPT") return NodeFilter.FILTER_REJECT;
						return NodeFilter.FILTER_ACCEPT;
					},
				});
				let n;
				while ((n = walker.nextNode())) n.nodeValue = n.nodeValue.replace(re, r.replacement || "");
			} catch (e) {
				return { __error: "invalid purify regex: " + r.pattern };
			}
		}
	}
	return null;
}

function __joinValues(vals) {
	return vals.join("\n");
}

function __run(payload) {
	const purifyErr = __purifyDoc(payload.purify);
	if (purifyErr) return purifyErr;

	try {
		if (payload.single) {
			const out = {};
			for (const k in payload.fields) out[k] = __joinValues(__resolveValues(payload.fields[k], document));
			return out;
		}

		const itemNodes = payload.list ? __resolveNodesList(payload.list, document) : [document];
		const items = itemNodes.map((itemNode) => {
			const rec = {};
			for (const k in payload.fields) rec[k] = __joinValues(__resolveValues(payload.fields[k], itemNode));
			return rec;
		});

		if (payload.rootFields) {
			const root = {};
			for (const k in payload.rootFields) root[k] = __joinValues(__resolveValues(payload.rootFields[k], document));
			return { root, items };
		}

		return items;
	} catch (e) {
		return { __error: String(e && e.message || e) };
	}
}
`
