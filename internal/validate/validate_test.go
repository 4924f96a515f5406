package validate_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/types"
	"github.com/aanand-mishra/people-lifecycle/internal/validate"
)

func valid() types.Person {
	return types.Person{
		Name:   "Animesh",
		Age:    types.Int(21),
		Gender: types.GenderMale,
		Salary: types.Float(3456),
	}
}

func TestPersonAcceptsValidRecord(t *testing.T) {
	p, err := validate.Person(valid())
	require.NoError(t, err)
	assert.Equal(t, "Animesh", p.Name)
}

func TestPersonTrimsName(t *testing.T) {
	in := valid()
	in.Name = "  Mary \t"

	p, err := validate.Person(in)
	require.NoError(t, err)
	assert.Equal(t, "Mary", p.Name)
}

func TestPersonOptionalFieldsMayBeUnset(t *testing.T) {
	p, err := validate.Person(types.Person{Name: "Jo", Gender: types.GenderOther})
	require.NoError(t, err)
	assert.Nil(t, p.Age)
	assert.Nil(t, p.Salary)
}

func TestPersonRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Person)
		field  string
		rule   string
	}{
		{"empty name", func(p *types.Person) { p.Name = "" }, "Name", "required"},
		{"one letter name", func(p *types.Person) { p.Name = "A" }, "Name", "min"},
		{"name short after trim", func(p *types.Person) { p.Name = "  A  " }, "Name", "min"},
		{"negative age", func(p *types.Person) { p.Age = types.Int(-1) }, "Age", "min"},
		{"age over 150", func(p *types.Person) { p.Age = types.Int(151) }, "Age", "max"},
		{"negative salary", func(p *types.Person) { p.Salary = types.Float(-0.01) }, "Salary", "min"},
		{"NaN salary", func(p *types.Person) { p.Salary = types.Float(math.NaN()) }, "Salary", "finite"},
		{"infinite salary", func(p *types.Person) { p.Salary = types.Float(math.Inf(1)) }, "Salary", "finite"},
		{"missing gender", func(p *types.Person) { p.Gender = "" }, "Gender", "required"},
		{"unknown gender", func(p *types.Person) { p.Gender = "male" }, "Gender", "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)

			_, err := validate.Person(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, storage.ErrValidation))

			var verr *validate.Error
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
			assert.Equal(t, tt.rule, verr.Fields[0].Rule)
			assert.NotEmpty(t, verr.Fields[0].Message)
		})
	}
}

func TestPersonBoundaryValuesAccepted(t *testing.T) {
	p := valid()
	p.Age = types.Int(0)
	p.Salary = types.Float(0)
	_, err := validate.Person(p)
	require.NoError(t, err)

	p.Age = types.Int(150)
	_, err = validate.Person(p)
	require.NoError(t, err)
}

func TestPersonReportsEveryBrokenField(t *testing.T) {
	_, err := validate.Person(types.Person{Name: "X", Age: types.Int(200), Salary: types.Float(-5)})

	var verr *validate.Error
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	assert.Contains(t, err.Error(), "field Name must be at least 2 characters long")
	assert.Contains(t, err.Error(), "field Salary cannot be less than 0")
}

func TestNonFiniteSalaryMessage(t *testing.T) {
	p := valid()
	p.Salary = types.Float(math.NaN())

	_, err := validate.Person(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field Salary must be a finite number")
	assert.NotContains(t, err.Error(), "cannot be less than")

	_, err = validate.Patch(types.Patch{Salary: types.Float(math.Inf(-1))})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestPatch(t *testing.T) {
	_, err := validate.Patch(types.Patch{})
	require.NoError(t, err, "empty patch is valid")

	_, err = validate.Patch(types.Patch{Salary: types.Float(5555)})
	require.NoError(t, err)

	_, err = validate.Patch(types.Patch{Salary: types.Float(-1)})
	assert.ErrorIs(t, err, storage.ErrValidation)

	bad := types.Gender("Robot")
	_, err = validate.Patch(types.Patch{Gender: &bad})
	assert.ErrorIs(t, err, storage.ErrValidation)

	name := "  Z "
	_, err = validate.Patch(types.Patch{Name: &name})
	assert.ErrorIs(t, err, storage.ErrValidation, "patched name is trimmed before the length check")

	name = " Zoe "
	p, err := validate.Patch(types.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Zoe", *p.Name)
}
