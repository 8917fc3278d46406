package record

import (
	"math"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dRec/lib/store"
)

// DefaultNamespace is the key namespace used when none is configured
const DefaultNamespace = "record"

// Hash field names of a stored record
const (
	FieldName     = "name"
	FieldCategory = "category"
	FieldMeasure  = "measure"
)

// Record is the typed representation of a stored hash
type Record struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Measure  float64 `json:"measure"`
}

// Validate rejects records that cannot be stored, indexed and read back by every client.
// The measure must be finite: NaN is not indexed as a number and neither NaN nor
// Inf can be encoded as JSON.
func (r Record) Validate() error {
	if math.IsNaN(r.Measure) || math.IsInf(r.Measure, 0) {
		return store.NewError(store.RetCInvalidOperation, "measure must be a finite number, got "+strconv.FormatFloat(r.Measure, 'g', -1, 64))
	}
	return nil
}

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// Keyspace maps record identifiers to store keys of the form <namespace>:<id>.
// It is the only place where the key shape is defined, the index prefix is
// derived from it as well.
type Keyspace string

// Namespace returns the namespace, falling back to DefaultNamespace
func (ks Keyspace) Namespace() string {
	if ks == "" {
		return DefaultNamespace
	}
	return string(ks)
}

// Key returns the store key of the record with the given id
func (ks Keyspace) Key(id uint64) string {
	return ks.Prefix() + strconv.FormatUint(id, 10)
}

// Prefix returns the common prefix of all keys in the keyspace
func (ks Keyspace) Prefix() string {
	return ks.Namespace() + ":"
}

// ParseKey extracts the record id from a store key
func (ks Keyspace) ParseKey(key string) (uint64, error) {
	rest, ok := strings.CutPrefix(key, ks.Prefix())
	if !ok {
		return 0, store.NewError(store.RetCMalformedKey, "key `"+key+"` is not in namespace `"+ks.Namespace()+"`")
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, store.WrapError(store.RetCMalformedKey, "key `"+key+"` has no numeric id", err)
	}
	return id, nil
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Encode returns the hash fields of rec. The id is carried by the key.
func Encode(rec Record) map[string]string {
	return map[string]string{
		FieldName:     rec.Name,
		FieldCategory: rec.Category,
		FieldMeasure:  strconv.FormatFloat(rec.Measure, 'f', -1, 64),
	}
}

// Decode converts the fields of a stored hash into a record.
// An empty hash means the record does not exist and yields (nil, nil).
// The caller sets the id from the key it read.
func Decode(fields map[string]string) (*Record, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	name, ok := fields[FieldName]
	if !ok {
		return nil, missingField(FieldName)
	}
	category, ok := fields[FieldCategory]
	if !ok {
		return nil, missingField(FieldCategory)
	}
	raw, ok := fields[FieldMeasure]
	if !ok {
		return nil, missingField(FieldMeasure)
	}
	measure, err := parseMeasure(raw)
	if err != nil {
		return nil, err
	}

	return &Record{
		Name:     name,
		Category: category,
		Measure:  measure,
	}, nil
}

// DecodeDocument converts a search result into a record. Partial documents are
// valid, missing fields keep their zero value.
func (ks Keyspace) DecodeDocument(doc store.Document) (Record, error) {
	id, err := ks.ParseKey(doc.ID)
	if err != nil {
		return Record{}, err
	}

	rec := Record{ID: id}
	if v, ok := doc.Fields[FieldName]; ok {
		rec.Name = v
	}
	if v, ok := doc.Fields[FieldCategory]; ok {
		rec.Category = v
	}
	if v, ok := doc.Fields[FieldMeasure]; ok {
		if rec.Measure, err = parseMeasure(v); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func parseMeasure(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, store.WrapError(store.RetCMalformedRecord, "field `"+FieldMeasure+"` is not a number", err)
	}
	return v, nil
}

func missingField(name string) error {
	return store.NewError(store.RetCMalformedRecord, "field `"+name+"` is missing")
}
