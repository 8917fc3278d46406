// Package search translates structured record queries into the index query
// language and maps the resulting documents back to records.
//
// Translation:
//
//	Match("name", "alice smi*")        -> @name:(alice smi*)
//	Tag("category", "eng", "ops")      -> @category:{eng|ops}
//	Range("measure", 10, math.Inf(1))  -> @measure:[10 +inf]
//	Not(Tag("category", "sales"))      -> -@category:{sales}
//
// Predicates are joined with spaces (intersection). A query without predicates
// or raw text matches every record.
package search
