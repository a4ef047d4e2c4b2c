package document

import (
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

// operation is a parsed collection call. The set of variants is closed; the
// Engine dispatches on the concrete type.
type operation interface {
	isWrite() bool
}

type readOnly struct{}

func (readOnly) isWrite() bool { return false }

type mutating struct{}

func (mutating) isWrite() bool { return true }

type (
	insertOneOp struct {
		mutating
		doc *Object
	}
	insertManyOp struct {
		mutating
		docs []*Object
	}
	findOp struct {
		readOnly
		query, projection *Object
		one               bool
	}
	aggregateOp struct {
		readOnly
		pipeline Array
	}
	updateOp struct {
		mutating
		filter, update *Object
		many           bool
	}
	deleteOp struct {
		mutating
		filter *Object
		many   bool
	}
	countOp struct {
		readOnly
		filter *Object
	}
	createIndexOp struct {
		mutating
		field string
		order int
		spec  *Object
	}
	getIndexesOp struct{ readOnly }
	dropOp       struct{ mutating }
)

// parseOperation turns the arguments of db.<coll>.<op>(...) into an
// operation. Operation names are case-insensitive.
func parseOperation(call callStmt) (operation, error) {
	args, err := parseArgs(call.args)
	if err != nil {
		return nil, err
	}
	first := argAt(args, 0)

	switch strings.ToLower(call.op) {
	case "insertone":
		doc := asObject(first)
		if doc == nil {
			return nil, engine.ArgumentError("insertOne requires a document")
		}
		return insertOneOp{doc: doc}, nil
	case "insertmany":
		arr, ok := first.(Array)
		if !ok {
			return nil, engine.ArgumentError("insertMany requires an array")
		}
		docs := make([]*Object, len(arr))
		for i, v := range arr {
			if docs[i] = asObject(v); docs[i] == nil {
				return nil, engine.ArgumentError("insertMany requires an array of documents")
			}
		}
		return insertManyOp{docs: docs}, nil
	case "find":
		return findOp{query: asObject(first), projection: asObject(argAt(args, 1))}, nil
	case "findone":
		return findOp{query: asObject(first), projection: asObject(argAt(args, 1)), one: true}, nil
	case "aggregate":
		return aggregateOp{pipeline: asArray(first)}, nil
	case "updateone", "updatemany":
		upd := asObject(argAt(args, 1))
		if upd == nil {
			upd = NewObject()
		}
		return updateOp{filter: asObject(first), update: upd, many: strings.EqualFold(call.op, "updateMany")}, nil
	case "deleteone", "deletemany":
		return deleteOp{filter: asObject(first), many: strings.EqualFold(call.op, "deleteMany")}, nil
	case "count", "countdocuments":
		return countOp{filter: asObject(first)}, nil
	case "createindex":
		spec := asObject(first)
		if spec == nil || spec.Len() == 0 {
			return nil, engine.ArgumentError("createIndex requires {field:1}")
		}
		field := spec.keys[0]
		order := 1
		if n, ok := AsNumber(spec.fields[field]); ok && int(n) != 0 {
			order = int(n)
		}
		return createIndexOp{field: field, order: order, spec: spec}, nil
	case "getindexes":
		return getIndexesOp{}, nil
	case "drop":
		return dropOp{}, nil
	}
	return nil, engine.Errorf(engine.ErrUnknownCommand, "Unknown operation: %s", call.op)
}
