package evaluator

import "github.com/dop251/goja"

// preludeSource defines the assertion library and the small helpers every
// scope starts with. It follows chai's assert interface closely enough for
// curriculum tests, including its message format.
const preludeSource = `
(function (global) {
	'use strict';

	function inspect(v, depth, seen) {
		if (depth === undefined) depth = 2;
		seen = seen || [];
		if (typeof v === 'string') return "'" + v + "'";
		if (typeof v === 'function') return '[Function' + (v.name ? ': ' + v.name : '') + ']';
		if (typeof v === 'symbol') return v.toString();
		if (typeof v === 'bigint') return v.toString() + 'n';
		if (v === null || typeof v !== 'object') {
			if (v === 0 && 1 / v < 0) return '-0';
			return String(v);
		}
		if (seen.indexOf(v) !== -1) return '[Circular]';
		if (v instanceof Date) return v.toISOString();
		if (v instanceof RegExp) return String(v);
		if (v instanceof Error) return '[' + String(v) + ']';
		seen.push(v);
		try {
			if (Array.isArray(v)) {
				if (v.length === 0) return '[]';
				if (depth < 0) return '[Array]';
				return '[ ' + v.map(function (x) { return inspect(x, depth - 1, seen); }).join(', ') + ' ]';
			}
			if (v instanceof Set) {
				return 'Set{ ' + Array.from(v, function (x) { return inspect(x, depth - 1, seen); }).join(', ') + ' }';
			}
			if (v instanceof Map) {
				return 'Map{ ' + Array.from(v.entries(), function (e) {
					return inspect(e[0], depth - 1, seen) + ' => ' + inspect(e[1], depth - 1, seen);
				}).join(', ') + ' }';
			}
			var keys = Object.keys(v);
			if (keys.length === 0) return '{}';
			if (depth < 0) return '[Object]';
			return '{ ' + keys.map(function (k) {
				return k + ': ' + inspect(v[k], depth - 1, seen);
			}).join(', ') + ' }';
		} finally {
			seen.pop();
		}
	}

	function format(x) {
		if (typeof x === 'string') return x;
		return inspect(x);
	}

	class AssertionError extends Error {
		constructor(message, props) {
			super(message);
			props = props || {};
			if ('expected' in props) this.expected = props.expected;
			if ('actual' in props) this.actual = props.actual;
			this.showDiff = !!props.showDiff;
		}
	}
	AssertionError.prototype.name = 'AssertionError';

	function fail(msg, template, actual, expected, withValues) {
		var text = template;
		if (msg) text = msg + ': ' + template;
		var props = withValues ? { actual: actual, expected: expected, showDiff: true } : {};
		throw new AssertionError(text, props);
	}

	function check(ok, msg, template, actual, expected, withValues) {
		if (!ok) fail(msg, template, actual, expected, withValues);
	}

	function sameValueZero(a, b) {
		return a === b || (a !== a && b !== b);
	}

	function tag(v) {
		return Object.prototype.toString.call(v);
	}

	function deepEqual(a, b, seen) {
		if (sameValueZero(a, b)) return true;
		if (typeof a !== 'object' || typeof b !== 'object' || a === null || b === null) return false;
		if (tag(a) !== tag(b)) return false;
		if (a instanceof Date) return a.getTime() === b.getTime();
		if (a instanceof RegExp) return String(a) === String(b);
		seen = seen || [];
		for (var i = 0; i < seen.length; i++) {
			if (seen[i][0] === a && seen[i][1] === b) return true;
		}
		seen.push([a, b]);
		if (a instanceof Set || a instanceof Map) {
			if (a.size !== b.size) return false;
			var ae = Array.from(a.entries()), be = Array.from(b.entries());
			return ae.every(function (e) {
				return be.some(function (f) { return deepEqual(e, f, seen); });
			});
		}
		var ak = Object.keys(a), bk = Object.keys(b);
		if (ak.length !== bk.length) return false;
		return ak.every(function (k) {
			return Object.prototype.hasOwnProperty.call(b, k) && deepEqual(a[k], b[k], seen);
		});
	}

	function includes(haystack, needle) {
		if (typeof haystack === 'string') return haystack.indexOf(needle) !== -1;
		if (haystack instanceof Set || haystack instanceof Map) return haystack.has(needle);
		if (haystack && typeof haystack.length === 'number') {
			return Array.prototype.some.call(haystack, function (x) { return x === needle; });
		}
		if (haystack && typeof haystack === 'object' && needle && typeof needle === 'object') {
			return Object.keys(needle).every(function (k) { return haystack[k] === needle[k]; });
		}
		return false;
	}

	function isEmpty(v) {
		if (typeof v === 'string') return v.length === 0;
		if (v instanceof Set || v instanceof Map) return v.size === 0;
		if (v && typeof v.length === 'number') return v.length === 0;
		if (v && typeof v === 'object') return Object.keys(v).length === 0;
		throw new TypeError('.empty was passed non-string primitive ' + inspect(v));
	}

	function typeName(v) {
		if (v === null) return 'null';
		if (Array.isArray(v)) return 'array';
		if (v instanceof RegExp) return 'regexp';
		if (v instanceof Date) return 'date';
		return typeof v;
	}

	function article(t) {
		return /^[aeiou]/.test(t) ? 'an ' + t : 'a ' + t;
	}

	function assert(expr, msg) {
		check(expr, msg, 'expected ' + inspect(expr) + ' to be truthy', expr, true, false);
	}

	assert.fail = function (msg) {
		throw new AssertionError(msg === undefined ? 'assert.fail()' : msg);
	};
	assert.ok = assert.isOk = function (v, msg) {
		check(v, msg, 'expected ' + inspect(v) + ' to be truthy');
	};
	assert.notOk = assert.isNotOk = function (v, msg) {
		check(!v, msg, 'expected ' + inspect(v) + ' to be falsy');
	};
	assert.isTrue = function (v, msg) {
		check(v === true, msg, 'expected ' + inspect(v) + ' to be true', v, true, true);
	};
	assert.isFalse = function (v, msg) {
		check(v === false, msg, 'expected ' + inspect(v) + ' to be false', v, false, true);
	};
	assert.isNotTrue = function (v, msg) {
		check(v !== true, msg, 'expected ' + inspect(v) + ' to not equal true');
	};
	assert.isNotFalse = function (v, msg) {
		check(v !== false, msg, 'expected ' + inspect(v) + ' to not equal false');
	};
	assert.equal = function (actual, expected, msg) {
		check(actual == expected, msg, 'expected ' + inspect(actual) + ' to equal ' + inspect(expected), actual, expected, true);
	};
	assert.notEqual = function (actual, expected, msg) {
		check(actual != expected, msg, 'expected ' + inspect(actual) + ' to not equal ' + inspect(expected), actual, expected, true);
	};
	assert.strictEqual = function (actual, expected, msg) {
		check(actual === expected, msg, 'expected ' + inspect(actual) + ' to equal ' + inspect(expected), actual, expected, true);
	};
	assert.notStrictEqual = function (actual, expected, msg) {
		check(actual !== expected, msg, 'expected ' + inspect(actual) + ' to not equal ' + inspect(expected), actual, expected, true);
	};
	assert.deepEqual = assert.deepStrictEqual = function (actual, expected, msg) {
		check(deepEqual(actual, expected), msg, 'expected ' + inspect(actual) + ' to deeply equal ' + inspect(expected), actual, expected, true);
	};
	assert.notDeepEqual = function (actual, expected, msg) {
		check(!deepEqual(actual, expected), msg, 'expected ' + inspect(actual) + ' to not deeply equal ' + inspect(expected), actual, expected, true);
	};
	assert.isAbove = function (v, n, msg) {
		check(v > n, msg, 'expected ' + inspect(v) + ' to be above ' + inspect(n));
	};
	assert.isAtLeast = function (v, n, msg) {
		check(v >= n, msg, 'expected ' + inspect(v) + ' to be at least ' + inspect(n));
	};
	assert.isBelow = function (v, n, msg) {
		check(v < n, msg, 'expected ' + inspect(v) + ' to be below ' + inspect(n));
	};
	assert.isAtMost = function (v, n, msg) {
		check(v <= n, msg, 'expected ' + inspect(v) + ' to be at most ' + inspect(n));
	};
	assert.approximately = assert.closeTo = function (v, expected, delta, msg) {
		check(Math.abs(v - expected) <= delta, msg, 'expected ' + inspect(v) + ' to be close to ' + inspect(expected) + ' +/- ' + inspect(delta));
	};
	assert.isNull = function (v, msg) {
		check(v === null, msg, 'expected ' + inspect(v) + ' to equal null', v, null, true);
	};
	assert.isNotNull = function (v, msg) {
		check(v !== null, msg, 'expected ' + inspect(v) + ' to not equal null');
	};
	assert.isUndefined = function (v, msg) {
		check(v === undefined, msg, 'expected ' + inspect(v) + ' to equal undefined', v, undefined, true);
	};
	assert.isDefined = function (v, msg) {
		check(v !== undefined, msg, 'expected ' + inspect(v) + ' to not equal undefined');
	};
	assert.exists = function (v, msg) {
		check(v !== null && v !== undefined, msg, 'expected ' + inspect(v) + ' to exist');
	};
	assert.notExists = function (v, msg) {
		check(v === null || v === undefined, msg, 'expected ' + inspect(v) + ' to not exist');
	};
	assert.isNaN = function (v, msg) {
		check(v !== v, msg, 'expected ' + inspect(v) + ' to be NaN');
	};
	assert.isNotNaN = function (v, msg) {
		check(v === v, msg, 'expected ' + inspect(v) + ' not to be NaN');
	};
	assert.typeOf = function (v, t, msg) {
		check(typeName(v) === t, msg, 'expected ' + inspect(v) + ' to be ' + article(t));
	};
	assert.notTypeOf = function (v, t, msg) {
		check(typeName(v) !== t, msg, 'expected ' + inspect(v) + ' not to be ' + article(t));
	};
	['string', 'number', 'boolean', 'function', 'object', 'array'].forEach(function (t) {
		var name = t.charAt(0).toUpperCase() + t.slice(1);
		assert['is' + name] = function (v, msg) { assert.typeOf(v, t, msg); };
		assert['isNot' + name] = function (v, msg) { assert.notTypeOf(v, t, msg); };
	});
	assert.instanceOf = function (v, ctor, msg) {
		check(v instanceof ctor, msg, 'expected ' + inspect(v) + ' to be an instance of ' + (ctor && ctor.name));
	};
	assert.notInstanceOf = function (v, ctor, msg) {
		check(!(v instanceof ctor), msg, 'expected ' + inspect(v) + ' to not be an instance of ' + (ctor && ctor.name));
	};
	assert.include = function (haystack, needle, msg) {
		check(includes(haystack, needle), msg, 'expected ' + inspect(haystack) + ' to include ' + inspect(needle));
	};
	assert.notInclude = function (haystack, needle, msg) {
		check(!includes(haystack, needle), msg, 'expected ' + inspect(haystack) + ' to not include ' + inspect(needle));
	};
	assert.match = function (v, re, msg) {
		check(re.test(v), msg, 'expected ' + inspect(v) + ' to match ' + String(re));
	};
	assert.notMatch = function (v, re, msg) {
		check(!re.test(v), msg, 'expected ' + inspect(v) + ' not to match ' + String(re));
	};
	assert.lengthOf = function (v, n, msg) {
		var len = v instanceof Set || v instanceof Map ? v.size : v.length;
		check(len === n, msg, 'expected ' + inspect(v) + ' to have a length of ' + inspect(n) + ' but got ' + inspect(len), len, n, true);
	};
	assert.isEmpty = function (v, msg) {
		check(isEmpty(v), msg, 'expected ' + inspect(v) + ' to be empty');
	};
	assert.isNotEmpty = function (v, msg) {
		check(!isEmpty(v), msg, 'expected ' + inspect(v) + ' not to be empty');
	};
	assert.property = function (obj, prop, msg) {
		check(obj !== null && obj !== undefined && prop in Object(obj), msg, 'expected ' + inspect(obj) + ' to have property ' + inspect(prop));
	};
	assert.notProperty = function (obj, prop, msg) {
		check(obj === null || obj === undefined || !(prop in Object(obj)), msg, 'expected ' + inspect(obj) + ' to not have property ' + inspect(prop));
	};
	assert.propertyVal = function (obj, prop, val, msg) {
		check(obj && obj[prop] === val, msg, 'expected ' + inspect(obj) + ' to have property ' + inspect(prop) + ' of ' + inspect(val), obj && obj[prop], val, true);
	};
	assert.oneOf = function (v, list, msg) {
		check(list.indexOf(v) !== -1, msg, 'expected ' + inspect(v) + ' to be one of ' + inspect(list));
	};
	assert.sameMembers = function (a, b, msg) {
		var same = a.length === b.length && a.every(function (x) { return b.indexOf(x) !== -1; });
		check(same, msg, 'expected ' + inspect(a) + ' to have the same members as ' + inspect(b), a, b, true);
	};
	assert.sameDeepMembers = function (a, b, msg) {
		var same = a.length === b.length && a.every(function (x) {
			return b.some(function (y) { return deepEqual(x, y); });
		});
		check(same, msg, 'expected ' + inspect(a) + ' to have the same members as ' + inspect(b), a, b, true);
	};
	assert.throws = assert.throw = function (fn, errLike, errMsg, msg) {
		if (typeof errLike === 'string' || errLike instanceof RegExp) {
			msg = errMsg;
			errMsg = errLike;
			errLike = undefined;
		}
		var caught, threw = false;
		try {
			fn();
		} catch (e) {
			threw = true;
			caught = e;
		}
		check(threw, msg, 'expected ' + inspect(fn) + ' to throw an error');
		if (typeof errLike === 'function') {
			check(caught instanceof errLike, msg, 'expected ' + inspect(fn) + ' to throw ' + errLike.name + ' but ' + inspect(caught) + ' was thrown');
		}
		if (errMsg !== undefined) {
			var text = caught && caught.message !== undefined ? caught.message : String(caught);
			var ok = errMsg instanceof RegExp ? errMsg.test(text) : text.indexOf(errMsg) !== -1;
			check(ok, msg, 'expected error message ' + inspect(text) + ' to include ' + inspect(errMsg));
		}
		return caught;
	};
	assert.doesNotThrow = function (fn, msg) {
		try {
			fn();
		} catch (e) {
			fail(msg, 'expected ' + inspect(fn) + ' to not throw an error but ' + inspect(e) + ' was thrown');
		}
	};

	Object.freeze(assert);

	function DeepEqual(a, b) {
		return JSON.stringify(a) === JSON.stringify(b);
	}

	function DeepFreeze(o) {
		Object.freeze(o);
		Object.getOwnPropertyNames(o).forEach(function (prop) {
			if (Object.prototype.hasOwnProperty.call(o, prop) &&
				o[prop] !== null &&
				(typeof o[prop] === 'object' || typeof o[prop] === 'function') &&
				!Object.isFrozen(o[prop])) {
				DeepFreeze(o[prop]);
			}
		});
		return o;
	}

	var log = global.__log;
	function logger(level) {
		return function () {
			log(level, Array.prototype.map.call(arguments, format).join(' '));
		};
	}

	global.assert = assert;
	global.chai = Object.freeze({ assert: assert, AssertionError: AssertionError });
	global.AssertionError = AssertionError;
	global.DeepEqual = DeepEqual;
	global.DeepFreeze = DeepFreeze;
	global.__inspect = inspect;
	global.__format = format;
	global.console = {
		log: logger('log'),
		info: logger('info'),
		warn: logger('warn'),
		error: logger('error'),
		debug: logger('debug')
	};
})(this);
`

var preludeProgram = goja.MustCompile("prelude.js", preludeSource, false)
