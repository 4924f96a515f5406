package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// keys maps logical fields to document keys.
var keys = map[types.Field]string{
	types.FieldID:        "_id",
	types.FieldName:      "name",
	types.FieldAge:       "age",
	types.FieldGender:    "gender",
	types.FieldSalary:    "salary",
	types.FieldCreatedAt: "createdAt",
	types.FieldUpdatedAt: "updatedAt",
}

// filterDocument translates a filter into a query document.
//
//	age gte 25, gender eq Female  →  {"age": {"$gte": 25}, "gender": {"$eq": "Female"}}
//
// Conditions on the same field are merged under one key. If the same
// field and operator appear twice the conditions are joined with $and so
// neither is lost.
func filterDocument(f types.Filter) (bson.M, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	merged := bson.M{}
	clauses := make([]bson.M, 0, len(f))
	collision := false

	for _, c := range f {
		key := keys[c.Field]
		op := "$" + string(c.Op)
		value, err := queryValue(c)
		if err != nil {
			return nil, err
		}

		clauses = append(clauses, bson.M{key: bson.M{op: value}})

		cond, ok := merged[key].(bson.M)
		if !ok {
			cond = bson.M{}
			merged[key] = cond
		}
		if _, dup := cond[op]; dup {
			collision = true
		}
		cond[op] = value
	}

	if collision {
		return bson.M{"$and": clauses}, nil
	}
	return merged, nil
}

// queryValue converts a condition value to its stored form. The only
// conversion needed is the hex id back to an ObjectID.
func queryValue(c types.Condition) (any, error) {
	if c.Field != types.FieldID {
		return c.Value, nil
	}
	switch v := c.Value.(type) {
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %v", v, err)
		}
		return oid, nil
	case primitive.ObjectID:
		return v, nil
	default:
		return nil, fmt.Errorf("invalid id value of type %T", c.Value)
	}
}

// findOptions builds sort, projection and limit. _id is returned by the
// server unless excluded, so it is never listed.
func findOptions(o types.FindOptions) (*options.FindOptions, error) {
	if o.Limit < 0 {
		return nil, fmt.Errorf("negative limit %d", o.Limit)
	}

	opts := options.Find()
	if o.Sort != "" {
		key, ok := keys[o.Sort]
		if !ok {
			return nil, fmt.Errorf("unknown sort field %q", o.Sort)
		}
		// _id breaks ties so equal keys come back in a stable order.
		sort := bson.D{{Key: key, Value: 1}}
		if key != "_id" {
			sort = append(sort, bson.E{Key: "_id", Value: 1})
		}
		opts.SetSort(sort)
	}

	if len(o.Projection) > 0 {
		proj := bson.D{}
		for _, f := range o.Projection {
			key, ok := keys[f]
			if !ok {
				return nil, fmt.Errorf("unknown projection field %q", f)
			}
			if key == "_id" {
				continue
			}
			proj = append(proj, bson.E{Key: key, Value: 1})
		}
		if len(proj) == 0 {
			proj = bson.D{{Key: "_id", Value: 1}}
		}
		opts.SetProjection(proj)
	}

	if o.Limit > 0 {
		opts.SetLimit(o.Limit)
	}
	return opts, nil
}

// updateDocument turns a patch into a $set of only the fields it sets,
// plus updatedAt.
func updateDocument(p types.Patch) bson.M {
	set := bson.M{"updatedAt": p.UpdatedAt}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Age != nil {
		set["age"] = *p.Age
	}
	if p.Gender != nil {
		set["gender"] = *p.Gender
	}
	if p.Salary != nil {
		set["salary"] = *p.Salary
	}
	return bson.M{"$set": set}
}
