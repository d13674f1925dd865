package telem

// DataType identifies how the samples of a series are laid out in memory. The set is
// closed: every type is either fixed width (Density > 0) or variable width.
type DataType string

// Density is the byte width of a single sample of a fixed width data type. Variable
// width types have a density of zero.
type Density int

const (
	UnknownDensity Density = 0
	Bit128         Density = 16
	Bit64          Density = 8
	Bit32          Density = 4
	Bit16          Density = 2
	Bit8           Density = 1
)

// SampleCount returns the number of samples held in byteLen bytes.
func (d Density) SampleCount(byteLen int) int {
	if d == UnknownDensity {
		return 0
	}
	return byteLen / int(d)
}

// Size returns the number of bytes occupied by sampleCount samples.
func (d Density) Size(sampleCount int) int {
	return sampleCount * int(d)
}

const (
	UnknownT   DataType = ""
	Float64T   DataType = "float64"
	Float32T   DataType = "float32"
	Int64T     DataType = "int64"
	Int32T     DataType = "int32"
	Int16T     DataType = "int16"
	Int8T      DataType = "int8"
	Uint64T    DataType = "uint64"
	Uint32T    DataType = "uint32"
	Uint16T    DataType = "uint16"
	Uint8T     DataType = "uint8"
	TimeStampT DataType = "timestamp"
	UUIDT      DataType = "uuid"
	StringT    DataType = "string"
	JSONT      DataType = "json"
	BytesT     DataType = "bytes"
)

var densities = map[DataType]Density{
	Float64T:   Bit64,
	Float32T:   Bit32,
	Int64T:     Bit64,
	Int32T:     Bit32,
	Int16T:     Bit16,
	Int8T:      Bit8,
	Uint64T:    Bit64,
	Uint32T:    Bit32,
	Uint16T:    Bit16,
	Uint8T:     Bit8,
	TimeStampT: Bit64,
	UUIDT:      Bit128,
}

var variable = map[DataType]bool{
	StringT: true,
	JSONT:   true,
	BytesT:  true,
}

// Density returns the fixed sample width of the data type, or UnknownDensity for
// variable and unknown types.
func (dt DataType) Density() Density { return densities[dt] }

// IsVariable returns true when the samples of the type have no fixed width. Variable
// samples are stored newline delimited.
func (dt DataType) IsVariable() bool { return variable[dt] }

// Valid reports whether dt is a member of the closed set.
func (dt DataType) Valid() bool {
	_, fixed := densities[dt]
	return fixed || variable[dt]
}

func (dt DataType) String() string {
	if dt == UnknownT {
		return "unknown"
	}
	return string(dt)
}

// DataTypes returns every known data type, fixed width types first.
func DataTypes() []DataType {
	return []DataType{
		Float64T, Float32T, Int64T, Int32T, Int16T, Int8T,
		Uint64T, Uint32T, Uint16T, Uint8T, TimeStampT, UUIDT,
		StringT, JSONT, BytesT,
	}
}
