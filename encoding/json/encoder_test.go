package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type details struct {
	Location string `json:"location"`
	Gender   string `json:"gender,omitempty"`
}

type person struct {
	Name    string   `json:"name"`
	Age     *int     `json:"age,omitempty"`
	Details *details `json:"details,omitempty"`
	Note    string   `json:"note,omitempty"`
}

func TestEncoder(t *testing.T) {
	age := 24
	p := person{Name: "Syd <Xu>", Age: &age, Details: &details{Location: "Beijing"}}

	enc := NewEncoder()
	js, err := enc.Marshal(p)
	require.NoError(t, err)
	exp := `{
  "name": "Syd <Xu>",
  "age": 24,
  "details": {
    "location": "Beijing"
  }
}
`
	assert.Equal(t, exp, string(js))

	var p2 person
	require.NoError(t, enc.Unmarshal(js, &p2))
	assert.Equal(t, p, p2)

	js, err = NewEncoder().WithIndent("").Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Syd <Xu>","age":24,"details":{"location":"Beijing"}}`+"\n", string(js))
}

func TestEncoder_Unmarshal(t *testing.T) {
	var p person
	err := NewEncoder().Unmarshal([]byte(`{"name":`), &p)
	assert.EqualError(t, err, "invalid JSON: unexpected EOF")

	js := []byte(`{"name":"a","extra":1}`)
	require.NoError(t, NewEncoder().Unmarshal(js, &p))
	assert.Equal(t, "a", p.Name)

	err = NewEncoder().WithStrict(true).Unmarshal(js, &p)
	assert.EqualError(t, err, `invalid JSON: json: unknown field "extra"`)
}
