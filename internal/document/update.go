package document

import "github.com/flashdb/playground/internal/engine"

// applyUpdate applies the update operators of upd to doc in the fixed order
// $set, $inc, $push, $pull, $rename.
func applyUpdate(doc, upd *Object) error {
	if inc := asObject(upd.fields["$inc"]); inc != nil {
		for _, k := range inc.keys {
			if _, ok := AsNumber(inc.fields[k]); !ok {
				return engine.ArgumentError("Cannot increment with non-numeric argument: {%s: %s}", k, describe(inc.fields[k]))
			}
		}
	}

	if set := asObject(upd.fields["$set"]); set != nil {
		for _, k := range set.keys {
			doc.Set(k, Clone(set.fields[k]))
		}
	}
	if inc := asObject(upd.fields["$inc"]); inc != nil {
		for _, k := range inc.keys {
			delta, _ := AsNumber(inc.fields[k])
			cur, _ := doc.Get(k)
			base, _ := AsNumber(cur)
			doc.Set(k, Number(base+delta))
		}
	}
	if push := asObject(upd.fields["$push"]); push != nil {
		for _, k := range push.keys {
			var next Array
			switch cur, _ := doc.Get(k); t := cur.(type) {
			case nil:
			case Array:
				next = append(next, t...)
			default:
				next = Array{t}
			}
			doc.Set(k, append(next, Clone(push.fields[k])))
		}
	}
	if pull := asObject(upd.fields["$pull"]); pull != nil {
		for _, k := range pull.keys {
			cur, _ := doc.Get(k)
			kept := Array{}
			for _, x := range asArray(cur) {
				if !Equal(x, pull.fields[k]) {
					kept = append(kept, x)
				}
			}
			doc.Set(k, kept)
		}
	}
	if rename := asObject(upd.fields["$rename"]); rename != nil {
		for _, from := range rename.keys {
			to := fieldName(rename.fields[from])
			if to == from || !doc.Has(from) {
				continue
			}
			v, _ := doc.Get(from)
			doc.Delete(from)
			doc.Set(to, v)
		}
	}
	return nil
}

// fieldName renders a value used as a field name.
func fieldName(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return describe(v)
}
