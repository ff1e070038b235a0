package ingest

import (
	"encoding/xml"
	"strings"

	"github.com/openportal/datainsight/internal/domain"
	"github.com/openportal/datainsight/internal/errs"
)

// containerKeys are the object keys probed for a record list, in priority
// order. The first key whose value is a list wins.
var containerKeys = []string{"results", "data", "items", "records"}

// ExtractJSON resolves one decoded JSON page into flat records plus an
// opaque next pointer (a URL string, a parameter-patch *domain.Record,
// or nil). Shape rules, first match wins:
//
//  1. A list — every object element becomes a record; no next pointer.
//  2. An object with exactly one key — recurse into that value. If the
//     recursion yields zero records, fall through to the rules below
//     (a single-field record must not be mistaken for a wrapper).
//  3. An object with results/data/items/records holding a list — object
//     elements become records; next pointer from next / links.next.
//  4. An object with a "row" list — single-shot dataset, no next pointer.
//  5. An object whose values are all scalars — the object is the sole record.
//  6. Anything else — no records. An unusable shape is an empty result,
//     never an error.
func ExtractJSON(payload any) ([]*domain.Record, any) {
	if list, ok := payload.([]any); ok {
		return recordsFromList(list), nil
	}

	obj, ok := payload.(*domain.Record)
	if !ok {
		return nil, nil
	}

	if obj.Len() == 1 {
		inner, _ := obj.Get(obj.Keys()[0])
		if records, next := ExtractJSON(inner); len(records) > 0 {
			return records, next
		}
	}

	for _, key := range containerKeys {
		if v, ok := obj.Get(key); ok {
			if list, isList := v.([]any); isList {
				return recordsFromList(list), nextPointer(obj)
			}
		}
	}

	if v, ok := obj.Get("row"); ok {
		if list, isList := v.([]any); isList {
			return recordsFromList(list), nil
		}
	}

	if allScalar(obj) {
		return []*domain.Record{obj}, nil
	}

	return nil, nil
}

// nextPointer pulls the continuation signal off a matched container object:
// a top-level "next" field if it is a string or object, else "links.next"
// if string or object, else nil.
func nextPointer(obj *domain.Record) any {
	if v, ok := obj.Get("next"); ok && isPointer(v) {
		return v
	}
	if links, ok := obj.Get("links"); ok {
		if linksObj, isObj := links.(*domain.Record); isObj {
			if v, ok := linksObj.Get("next"); ok && isPointer(v) {
				return v
			}
		}
	}
	return nil
}

func isPointer(v any) bool {
	switch v.(type) {
	case string, *domain.Record:
		return true
	default:
		return false
	}
}

func recordsFromList(list []any) []*domain.Record {
	records := make([]*domain.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(*domain.Record); ok {
			records = append(records, rec)
		}
	}
	return records
}

func allScalar(obj *domain.Record) bool {
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		if !domain.IsScalar(v) {
			return false
		}
	}
	return true
}

// xmlElem is a generic XML tree node used for extraction.
type xmlElem struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []xmlElem `xml:",any"`
}

// ExtractXML treats each direct child of the root element as one record,
// mapping grandchild tags to their trimmed text content. When no child
// yields a record the trimmed root text becomes a single record keyed by
// the root tag. XML sources never advertise pagination — datasets are
// single-page by convention.
func ExtractXML(text string) ([]*domain.Record, error) {
	var root xmlElem
	if err := xml.Unmarshal([]byte(text), &root); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnsupportedFormat, "invalid XML payload", err)
	}

	var records []*domain.Record
	for _, child := range root.Children {
		rec := domain.NewRecord()
		for _, grandchild := range child.Children {
			rec.Set(grandchild.XMLName.Local, strings.TrimSpace(grandchild.Text))
		}
		if rec.Len() > 0 {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		rec := domain.NewRecord()
		rec.Set(root.XMLName.Local, strings.TrimSpace(root.Text))
		records = append(records, rec)
	}
	return records, nil
}
