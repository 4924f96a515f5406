package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
	"github.com/aanand-mishra/people-lifecycle/internal/people"
	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
)

// Animesh is the record written by the insert-one step.
func Animesh() types.Person {
	return types.Person{Name: "Animesh", Age: types.Int(21), Gender: types.GenderMale, Salary: types.Float(3456)}
}

// Fixtures are the records written by the insert-many step.
func Fixtures() []types.Person {
	return []types.Person{
		{Name: "Simon", Age: types.Int(42), Gender: types.GenderMale, Salary: types.Float(3456)},
		{Name: "Neesha", Age: types.Int(23), Gender: types.GenderFemale, Salary: types.Float(1000)},
		{Name: "Mary", Age: types.Int(27), Gender: types.GenderFemale, Salary: types.Float(5402)},
		{Name: "Mike", Age: types.Int(40), Gender: types.GenderMale, Salary: types.Float(4519)},
		{Name: "Sarah", Age: types.Int(35), Gender: types.GenderFemale, Salary: types.Float(6200)},
		{Name: "Emma", Age: types.Int(28), Gender: types.GenderFemale, Salary: types.Float(4800)},
		{Name: "Lisa", Age: types.Int(45), Gender: types.GenderFemale, Salary: types.Float(7500)},
	}
}

// Script parameters.
const (
	SortedLimit   = 5
	FilteredLimit = 10
	FilteredAge   = 30
	DeleteFromAge = 25
	FemaleSalary  = 5555.0
)

var (
	summary  = []types.Field{types.FieldName, types.FieldSalary, types.FieldAge}
	detailed = []types.Field{types.FieldName, types.FieldGender, types.FieldSalary, types.FieldAge}
	females  = types.Where(types.FieldGender, types.OpEq, types.GenderFemale)
	deletion = types.Where(types.FieldAge, types.OpGte, DeleteFromAge)
)

// Script returns the ordered data-lifecycle tasks over repo. With reset
// set, the collection is emptied first so reruns see the same data.
func Script(repo *people.Repository, log *zap.Logger, reset bool) []Task {
	var tasks []Task

	if reset {
		tasks = append(tasks, Task{Name: "reset", Run: func(ctx context.Context) error {
			res, err := repo.DeleteMany(ctx, nil)
			if err != nil {
				return err
			}
			log.Info("collection emptied", zap.Int64("deleted", res.Deleted))
			return nil
		}})
	}

	return append(tasks,
		Task{Name: "insert-one", Run: func(ctx context.Context) error {
			p, err := repo.InsertOne(ctx, Animesh())
			if err != nil {
				return err
			}
			log.Info("new person added", personFields(p)...)
			return nil
		}},
		Task{Name: "insert-many", Run: func(ctx context.Context) error {
			stored, err := repo.InsertMany(ctx, Fixtures())
			log.Info("data inserted", zap.Int("documents", len(stored)))
			return err
		}},
		Task{Name: "find-sorted", Run: func(ctx context.Context) error {
			docs, err := repo.FindSorted(ctx, nil, types.FieldSalary, summary, SortedLimit)
			if err != nil {
				return err
			}
			logPeople(log, "sorted by salary ascending", docs)
			return nil
		}},
		Task{Name: "find-filtered", Run: func(ctx context.Context) error {
			f := females.And(types.Condition{Field: types.FieldAge, Op: types.OpGte, Value: FilteredAge})
			docs, err := repo.FindSorted(ctx, f, types.FieldSalary, summary, FilteredLimit)
			if err != nil {
				return err
			}
			logPeople(log, fmt.Sprintf("females with age >= %d", FilteredAge), docs)
			return nil
		}},
		Task{Name: "count", Run: func(ctx context.Context) error {
			n, err := repo.Count(ctx, nil)
			if err != nil {
				return err
			}
			log.Info("documents counted", zap.Int64("count", n))
			return nil
		}},
		Task{Name: "delete", Run: func(ctx context.Context) error {
			res, err := repo.DeleteMany(ctx, deletion)
			if err != nil {
				return err
			}
			log.Info("documents deleted", zap.Int("minAge", DeleteFromAge), zap.Int64("deletedCount", res.Deleted))
			return nil
		}},
		Task{Name: "update", Run: func(ctx context.Context) error {
			res, err := repo.UpdateMany(ctx, females, types.Patch{Salary: types.Float(FemaleSalary)})
			if err != nil {
				return err
			}
			log.Info("documents updated",
				zap.Float64("salary", FemaleSalary),
				zap.Int64("matchedCount", res.Matched),
				zap.Int64("modifiedCount", res.Modified))
			return nil
		}},
		Task{Name: "find-updated", Run: func(ctx context.Context) error {
			docs, err := repo.FindSorted(ctx, females, types.FieldSalary, detailed, 0)
			if err != nil {
				return err
			}
			logPeople(log, "updated records", docs)
			return nil
		}},
	)
}

// Opener opens the backing store. It is called once per Execute.
type Opener func(ctx context.Context) (storage.Storage, error)

// Execute opens the store, runs the script and closes the store on every
// path out, including a fail-fast abort. A connection failure is
// returned as is; there is no retry.
func Execute(ctx context.Context, cfg *config.Config, open Opener, log *zap.Logger) (report Report, err error) {
	store, err := open(ctx)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		// Close with a fresh context: a cancelled run must still disconnect.
		if cerr := store.Close(context.Background()); cerr != nil {
			log.Error("close failed", zap.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}()

	repo := people.New(store, log)
	return NewRunner(cfg.ErrorMode, log).Run(ctx, Script(repo, log, cfg.Reset))
}

func logPeople(log *zap.Logger, what string, docs []types.Person) {
	for _, p := range docs {
		log.Info("found", append([]zap.Field{zap.String("query", what)}, personFields(p)...)...)
	}
	log.Info("total documents found", zap.String("query", what), zap.Int("count", len(docs)))
}

func personFields(p types.Person) []zap.Field {
	fields := []zap.Field{zap.String("id", p.ID), zap.String("name", p.Name)}
	if p.Age != nil {
		fields = append(fields, zap.Int("age", *p.Age))
	}
	if p.Gender != "" {
		fields = append(fields, zap.String("gender", string(p.Gender)))
	}
	if p.Salary != nil {
		fields = append(fields, zap.Float64("salary", *p.Salary))
	}
	return fields
}
