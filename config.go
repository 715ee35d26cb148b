package secd

import "fmt"

type Config map[string]*cfgVal

// NewConfig creates a new configuration object primed with the
// defaults expected by the machine: a 1000-cell pool, a 1000-byte
// code image, tracing off, and no instruction budget.
func NewConfig() *Config {
	m := make(Config)
	m.SetInt("machine.cells", 1000)
	m.SetInt("machine.code_size", 1000)
	m.SetInt("machine.step_limit", 0)
	m.SetBool("machine.trace", false)
	return &m
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
	}[vt]
}

type cfgVal struct {
	typ    cfgValType
	asBool bool
	asInt  int
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("Can't retrieve `%s` from `%s` variable", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{typ: cfgValType_Bool, asBool: v}
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{typ: cfgValType_Int, asInt: v}
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("Bool setting `%s` does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("Int setting `%s` does not exist", path))
}
