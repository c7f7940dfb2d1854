package metadata

import "fmt"

// ColumnKind describes how a column's width is determined.
type ColumnKind uint8

const (
	KindFixed ColumnKind = iota // constant 1, 2 or 4 bytes
	KindHeap                    // index into #Strings, #GUID or #Blob
	KindIndex                   // simple index into another table
	KindCoded                   // coded index into one of several tables
)

// Column is one column of a table schema.
type Column struct {
	Name  string
	Kind  ColumnKind
	Size  int         // KindFixed
	Heap  HeapID      // KindHeap
	Table TableID     // KindIndex
	Coded *CodedIndex // KindCoded
}

// tableUnused marks an unused tag of a coded index.
const tableUnused TableID = 0xFF

// CodedIndex describes a coded index: the low TagBits select one of
// Tables, the remaining bits hold the row number.
type CodedIndex struct {
	Name    string
	TagBits uint
	Tables  []TableID
}

// Coded indices (ECMA-335 II.24.2.6)
var (
	TypeDefOrRef = &CodedIndex{"TypeDefOrRef", 2, []TableID{
		TableTypeDef, TableTypeRef, TableTypeSpec}}
	HasConstant = &CodedIndex{"HasConstant", 2, []TableID{
		TableField, TableParam, TableProperty}}
	HasCustomAttribute = &CodedIndex{"HasCustomAttribute", 5, []TableID{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec}}
	HasFieldMarshal = &CodedIndex{"HasFieldMarshal", 1, []TableID{
		TableField, TableParam}}
	HasDeclSecurity = &CodedIndex{"HasDeclSecurity", 2, []TableID{
		TableTypeDef, TableMethodDef, TableAssembly}}
	MemberRefParent = &CodedIndex{"MemberRefParent", 3, []TableID{
		TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}}
	HasSemantics = &CodedIndex{"HasSemantics", 1, []TableID{
		TableEvent, TableProperty}}
	MethodDefOrRef = &CodedIndex{"MethodDefOrRef", 1, []TableID{
		TableMethodDef, TableMemberRef}}
	MemberForwarded = &CodedIndex{"MemberForwarded", 1, []TableID{
		TableField, TableMethodDef}}
	Implementation = &CodedIndex{"Implementation", 2, []TableID{
		TableFile, TableAssemblyRef, TableExportedType}}
	CustomAttributeType = &CodedIndex{"CustomAttributeType", 3, []TableID{
		tableUnused, tableUnused, TableMethodDef, TableMemberRef, tableUnused}}
	ResolutionScope = &CodedIndex{"ResolutionScope", 2, []TableID{
		TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}}
	TypeOrMethodDef = &CodedIndex{"TypeOrMethodDef", 1, []TableID{
		TableTypeDef, TableMethodDef}}
)

// Decode splits a coded index value into a metadata token. ok is false
// for tags that are out of range or unused, and for row numbers that do
// not fit in a token.
func (c *CodedIndex) Decode(v uint32) (Token, bool) {
	tag := v & (1<<c.TagBits - 1)
	if int(tag) >= len(c.Tables) || c.Tables[tag] == tableUnused {
		return 0, false
	}
	rid := v >> c.TagBits
	if rid > maxRID {
		return 0, false
	}
	return NewToken(c.Tables[tag], rid), true
}

// Encode builds the coded index value for row rid of table t.
func (c *CodedIndex) Encode(t TableID, rid uint32) (uint32, bool) {
	if rid > maxRID {
		return 0, false
	}
	for tag, id := range c.Tables {
		if id == t {
			return rid<<c.TagBits | uint32(tag), true
		}
	}
	return 0, false
}

// Token is a metadata token: table ID in the high byte, 1-based row
// number in the low three bytes. A zero row number is a null reference.
type Token uint32

const maxRID = 0x00FFFFFF

// NewToken builds the token for row rid of table t.
func NewToken(t TableID, rid uint32) Token {
	return Token(uint32(t)<<24 | rid&maxRID)
}

// Table returns the table the token refers to.
func (t Token) Table() TableID {
	return TableID(t >> 24)
}

// RID returns the 1-based row number.
func (t Token) RID() uint32 {
	return uint32(t) & maxRID
}

// IsNil reports whether the token is a null reference.
func (t Token) IsNil() bool {
	return t.RID() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}

func fixedCol(name string, size int) Column { return Column{Name: name, Kind: KindFixed, Size: size} }
func strCol(name string) Column             { return Column{Name: name, Kind: KindHeap, Heap: HeapStrings} }
func guidCol(name string) Column            { return Column{Name: name, Kind: KindHeap, Heap: HeapGUID} }
func blobCol(name string) Column            { return Column{Name: name, Kind: KindHeap, Heap: HeapBlob} }
func indexCol(name string, t TableID) Column {
	return Column{Name: name, Kind: KindIndex, Table: t}
}
func codedCol(name string, c *CodedIndex) Column {
	return Column{Name: name, Kind: KindCoded, Coded: c}
}

type tableSchema struct {
	name    string
	columns []Column
}

// schema lists every table's columns in on-disk order.
var schema = [NumTables]tableSchema{
	TableModule: {"Module", []Column{
		fixedCol("Generation", 2), strCol("Name"), guidCol("Mvid"), guidCol("EncId"), guidCol("EncBaseId")}},
	TableTypeRef: {"TypeRef", []Column{
		codedCol("ResolutionScope", ResolutionScope), strCol("TypeName"), strCol("TypeNamespace")}},
	TableTypeDef: {"TypeDef", []Column{
		fixedCol("Flags", 4), strCol("TypeName"), strCol("TypeNamespace"), codedCol("Extends", TypeDefOrRef),
		indexCol("FieldList", TableField), indexCol("MethodList", TableMethodDef)}},
	TableFieldPtr: {"FieldPtr", []Column{indexCol("Field", TableField)}},
	TableField: {"Field", []Column{
		fixedCol("Flags", 2), strCol("Name"), blobCol("Signature")}},
	TableMethodPtr: {"MethodPtr", []Column{indexCol("Method", TableMethodDef)}},
	TableMethodDef: {"MethodDef", []Column{
		fixedCol("RVA", 4), fixedCol("ImplFlags", 2), fixedCol("Flags", 2), strCol("Name"), blobCol("Signature"),
		indexCol("ParamList", TableParam)}},
	TableParamPtr: {"ParamPtr", []Column{indexCol("Param", TableParam)}},
	TableParam: {"Param", []Column{
		fixedCol("Flags", 2), fixedCol("Sequence", 2), strCol("Name")}},
	TableInterfaceImpl: {"InterfaceImpl", []Column{
		indexCol("Class", TableTypeDef), codedCol("Interface", TypeDefOrRef)}},
	TableMemberRef: {"MemberRef", []Column{
		codedCol("Class", MemberRefParent), strCol("Name"), blobCol("Signature")}},
	TableConstant: {"Constant", []Column{
		fixedCol("Type", 1), fixedCol("Padding", 1), codedCol("Parent", HasConstant), blobCol("Value")}},
	TableCustomAttribute: {"CustomAttribute", []Column{
		codedCol("Parent", HasCustomAttribute), codedCol("Type", CustomAttributeType), blobCol("Value")}},
	TableFieldMarshal: {"FieldMarshal", []Column{
		codedCol("Parent", HasFieldMarshal), blobCol("NativeType")}},
	TableDeclSecurity: {"DeclSecurity", []Column{
		fixedCol("Action", 2), codedCol("Parent", HasDeclSecurity), blobCol("PermissionSet")}},
	TableClassLayout: {"ClassLayout", []Column{
		fixedCol("PackingSize", 2), fixedCol("ClassSize", 4), indexCol("Parent", TableTypeDef)}},
	TableFieldLayout: {"FieldLayout", []Column{
		fixedCol("Offset", 4), indexCol("Field", TableField)}},
	TableStandAloneSig: {"StandAloneSig", []Column{blobCol("Signature")}},
	TableEventMap: {"EventMap", []Column{
		indexCol("Parent", TableTypeDef), indexCol("EventList", TableEvent)}},
	TableEventPtr: {"EventPtr", []Column{indexCol("Event", TableEvent)}},
	TableEvent: {"Event", []Column{
		fixedCol("EventFlags", 2), strCol("Name"), codedCol("EventType", TypeDefOrRef)}},
	TablePropertyMap: {"PropertyMap", []Column{
		indexCol("Parent", TableTypeDef), indexCol("PropertyList", TableProperty)}},
	TablePropertyPtr: {"PropertyPtr", []Column{indexCol("Property", TableProperty)}},
	TableProperty: {"Property", []Column{
		fixedCol("Flags", 2), strCol("Name"), blobCol("Type")}},
	TableMethodSemantics: {"MethodSemantics", []Column{
		fixedCol("Semantics", 2), indexCol("Method", TableMethodDef), codedCol("Association", HasSemantics)}},
	TableMethodImpl: {"MethodImpl", []Column{
		indexCol("Class", TableTypeDef), codedCol("MethodBody", MethodDefOrRef), codedCol("MethodDeclaration", MethodDefOrRef)}},
	TableModuleRef: {"ModuleRef", []Column{strCol("Name")}},
	TableTypeSpec:  {"TypeSpec", []Column{blobCol("Signature")}},
	TableImplMap: {"ImplMap", []Column{
		fixedCol("MappingFlags", 2), codedCol("MemberForwarded", MemberForwarded), strCol("ImportName"),
		indexCol("ImportScope", TableModuleRef)}},
	TableFieldRVA: {"FieldRVA", []Column{
		fixedCol("RVA", 4), indexCol("Field", TableField)}},
	TableEncLog: {"EncLog", []Column{fixedCol("Token", 4), fixedCol("FuncCode", 4)}},
	TableEncMap: {"EncMap", []Column{fixedCol("Token", 4)}},
	TableAssembly: {"Assembly", []Column{
		fixedCol("HashAlgId", 4), fixedCol("MajorVersion", 2), fixedCol("MinorVersion", 2),
		fixedCol("BuildNumber", 2), fixedCol("RevisionNumber", 2), fixedCol("Flags", 4),
		blobCol("PublicKey"), strCol("Name"), strCol("Culture")}},
	TableAssemblyProcessor: {"AssemblyProcessor", []Column{fixedCol("Processor", 4)}},
	TableAssemblyOS: {"AssemblyOS", []Column{
		fixedCol("OSPlatformID", 4), fixedCol("OSMajorVersion", 4), fixedCol("OSMinorVersion", 4)}},
	TableAssemblyRef: {"AssemblyRef", []Column{
		fixedCol("MajorVersion", 2), fixedCol("MinorVersion", 2), fixedCol("BuildNumber", 2),
		fixedCol("RevisionNumber", 2), fixedCol("Flags", 4), blobCol("PublicKeyOrToken"),
		strCol("Name"), strCol("Culture"), blobCol("HashValue")}},
	TableAssemblyRefProcessor: {"AssemblyRefProcessor", []Column{
		fixedCol("Processor", 4), indexCol("AssemblyRef", TableAssemblyRef)}},
	TableAssemblyRefOS: {"AssemblyRefOS", []Column{
		fixedCol("OSPlatformId", 4), fixedCol("OSMajorVersion", 4), fixedCol("OSMinorVersion", 4),
		indexCol("AssemblyRef", TableAssemblyRef)}},
	TableFile: {"File", []Column{
		fixedCol("Flags", 4), strCol("Name"), blobCol("HashValue")}},
	TableExportedType: {"ExportedType", []Column{
		fixedCol("Flags", 4), fixedCol("TypeDefId", 4), strCol("TypeName"), strCol("TypeNamespace"),
		codedCol("Implementation", Implementation)}},
	TableManifestResource: {"ManifestResource", []Column{
		fixedCol("Offset", 4), fixedCol("Flags", 4), strCol("Name"), codedCol("Implementation", Implementation)}},
	TableNestedClass: {"NestedClass", []Column{
		indexCol("NestedClass", TableTypeDef), indexCol("EnclosingClass", TableTypeDef)}},
	TableGenericParam: {"GenericParam", []Column{
		fixedCol("Number", 2), fixedCol("Flags", 2), codedCol("Owner", TypeOrMethodDef), strCol("Name")}},
	TableMethodSpec: {"MethodSpec", []Column{
		codedCol("Method", MethodDefOrRef), blobCol("Instantiation")}},
	TableGenericParamConstraint: {"GenericParamConstraint", []Column{
		indexCol("Owner", TableGenericParam), codedCol("Constraint", TypeDefOrRef)}},
}

// Columns returns the schema of table t.
func Columns(t TableID) []Column {
	if int(t) >= NumTables {
		return nil
	}
	return schema[t].columns
}
