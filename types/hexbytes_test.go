package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytesJSONRoundTrip(t *testing.T) {
	c := qt.New(t)

	b := HexBytes{0xde, 0xad, 0xbe, 0xef}
	data, err := json.Marshal(b)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `"0xdeadbeef"`)

	var got HexBytes
	c.Assert(json.Unmarshal(data, &got), qt.IsNil)
	c.Assert(got.Equal(b), qt.IsTrue)

	// the prefix is optional on input
	c.Assert(json.Unmarshal([]byte(`"deadbeef"`), &got), qt.IsNil)
	c.Assert(got.Equal(b), qt.IsTrue)

	c.Assert(json.Unmarshal([]byte(`"zzzz"`), &got), qt.IsNotNil)
}

func TestHexBytesString(t *testing.T) {
	c := qt.New(t)

	b := HexBytes{0x01, 0x02}
	c.Assert(b.String(), qt.Equals, "0x0102")
	c.Assert(b.Hex(), qt.Equals, "0102")
	c.Assert(HexStringToHexBytes("0x0102").Equal(b), qt.IsTrue)
	c.Assert(HexStringToHexBytes("0102").Equal(b), qt.IsTrue)
}

func TestQuestionTypeValid(t *testing.T) {
	c := qt.New(t)

	for _, typ := range []QuestionType{QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeYesNo} {
		c.Assert(typ.Valid(), qt.IsTrue)
	}
	c.Assert(QuestionType("ranked").Valid(), qt.IsFalse)
	c.Assert(QuestionType("").Valid(), qt.IsFalse)
}
