package abi

// Call is one decoded syscall request. Each variant carries the typed
// payload of its syscall; Decode and Encode convert between a variant and
// the numeric register ABI.
type Call interface {
	Syscall() Syscall
	Args() Args
}

type (
	Cputs struct {
		VA  uint32
		Len uint32
	}
	Cgetc      struct{}
	Getenvid   struct{}
	EnvDestroy struct {
		Env EnvID
	}
	PageAlloc struct {
		Env  EnvID
		VA   uint32
		Perm uint32
	}
	PageMap struct {
		SrcEnv EnvID
		SrcVA  uint32
		DstEnv EnvID
		DstVA  uint32
		Perm   uint32
	}
	PageUnmap struct {
		Env EnvID
		VA  uint32
	}
	Exofork      struct{}
	EnvSetStatus struct {
		Env    EnvID
		Status EnvStatus
	}
	EnvSetTrapframe struct {
		Env EnvID
		TF  uint32 // user address of a TrapFrame
	}
	EnvSetPgfaultUpcall struct {
		Env  EnvID
		Func uint32
	}
	Yield      struct{}
	IPCTrySend struct {
		Env   EnvID
		Value uint32
		SrcVA uint32
		Perm  uint32
	}
	IPCRecv struct {
		DstVA uint32
	}
	Gettime     struct{}
	ClockGetres struct {
		Clock ClockID
		Res   uint32
	}
	ClockGettime struct {
		Clock ClockID
		TP    uint32
	}
	ClockSettime struct {
		Clock ClockID
		TP    uint32
	}
	ClockNanosleep struct {
		Clock ClockID
		Flags uint32
		Req   uint32
		Rem   uint32 // zero when the caller does not want the remainder
	}
)

func (Cputs) Syscall() Syscall               { return SysCputs }
func (Cgetc) Syscall() Syscall               { return SysCgetc }
func (Getenvid) Syscall() Syscall            { return SysGetenvid }
func (EnvDestroy) Syscall() Syscall          { return SysEnvDestroy }
func (PageAlloc) Syscall() Syscall           { return SysPageAlloc }
func (PageMap) Syscall() Syscall             { return SysPageMap }
func (PageUnmap) Syscall() Syscall           { return SysPageUnmap }
func (Exofork) Syscall() Syscall             { return SysExofork }
func (EnvSetStatus) Syscall() Syscall        { return SysEnvSetStatus }
func (EnvSetTrapframe) Syscall() Syscall     { return SysEnvSetTrapframe }
func (EnvSetPgfaultUpcall) Syscall() Syscall { return SysEnvSetPgfaultUpcall }
func (Yield) Syscall() Syscall               { return SysYield }
func (IPCTrySend) Syscall() Syscall          { return SysIPCTrySend }
func (IPCRecv) Syscall() Syscall             { return SysIPCRecv }
func (Gettime) Syscall() Syscall             { return SysGettime }
func (ClockGetres) Syscall() Syscall         { return SysClockGetres }
func (ClockGettime) Syscall() Syscall        { return SysClockGettime }
func (ClockSettime) Syscall() Syscall        { return SysClockSettime }
func (ClockNanosleep) Syscall() Syscall      { return SysClockNanosleep }

func (c Cputs) Args() Args      { return Args{c.VA, c.Len} }
func (Cgetc) Args() Args        { return Args{} }
func (Getenvid) Args() Args     { return Args{} }
func (c EnvDestroy) Args() Args { return Args{uint32(c.Env)} }
func (c PageAlloc) Args() Args  { return Args{uint32(c.Env), c.VA, c.Perm} }
func (c PageMap) Args() Args {
	return Args{uint32(c.SrcEnv), c.SrcVA, uint32(c.DstEnv), c.DstVA, c.Perm}
}
func (c PageUnmap) Args() Args           { return Args{uint32(c.Env), c.VA} }
func (Exofork) Args() Args               { return Args{} }
func (c EnvSetStatus) Args() Args        { return Args{uint32(c.Env), uint32(c.Status)} }
func (c EnvSetTrapframe) Args() Args     { return Args{uint32(c.Env), c.TF} }
func (c EnvSetPgfaultUpcall) Args() Args { return Args{uint32(c.Env), c.Func} }
func (Yield) Args() Args                 { return Args{} }
func (c IPCTrySend) Args() Args          { return Args{uint32(c.Env), c.Value, c.SrcVA, c.Perm} }
func (c IPCRecv) Args() Args             { return Args{c.DstVA} }
func (Gettime) Args() Args               { return Args{} }
func (c ClockGetres) Args() Args         { return Args{uint32(c.Clock), c.Res} }
func (c ClockGettime) Args() Args        { return Args{uint32(c.Clock), c.TP} }
func (c ClockSettime) Args() Args        { return Args{uint32(c.Clock), c.TP} }
func (c ClockNanosleep) Args() Args {
	return Args{uint32(c.Clock), c.Flags, c.Req, c.Rem}
}

// Decode maps a syscall number and its raw arguments to a typed request.
// Unknown numbers fail with EInval.
func Decode(no Syscall, a Args) (Call, error) {
	switch no {
	case SysCputs:
		return Cputs{VA: a[0], Len: a[1]}, nil
	case SysCgetc:
		return Cgetc{}, nil
	case SysGetenvid:
		return Getenvid{}, nil
	case SysEnvDestroy:
		return EnvDestroy{Env: EnvID(a[0])}, nil
	case SysPageAlloc:
		return PageAlloc{Env: EnvID(a[0]), VA: a[1], Perm: a[2]}, nil
	case SysPageMap:
		return PageMap{SrcEnv: EnvID(a[0]), SrcVA: a[1], DstEnv: EnvID(a[2]), DstVA: a[3], Perm: a[4]}, nil
	case SysPageUnmap:
		return PageUnmap{Env: EnvID(a[0]), VA: a[1]}, nil
	case SysExofork:
		return Exofork{}, nil
	case SysEnvSetStatus:
		return EnvSetStatus{Env: EnvID(a[0]), Status: EnvStatus(a[1])}, nil
	case SysEnvSetTrapframe:
		return EnvSetTrapframe{Env: EnvID(a[0]), TF: a[1]}, nil
	case SysEnvSetPgfaultUpcall:
		return EnvSetPgfaultUpcall{Env: EnvID(a[0]), Func: a[1]}, nil
	case SysYield:
		return Yield{}, nil
	case SysIPCTrySend:
		return IPCTrySend{Env: EnvID(a[0]), Value: a[1], SrcVA: a[2], Perm: a[3]}, nil
	case SysIPCRecv:
		return IPCRecv{DstVA: a[0]}, nil
	case SysGettime:
		return Gettime{}, nil
	case SysClockGetres:
		return ClockGetres{Clock: ClockID(a[0]), Res: a[1]}, nil
	case SysClockGettime:
		return ClockGettime{Clock: ClockID(a[0]), TP: a[1]}, nil
	case SysClockSettime:
		return ClockSettime{Clock: ClockID(a[0]), TP: a[1]}, nil
	case SysClockNanosleep:
		return ClockNanosleep{Clock: ClockID(a[0]), Flags: a[1], Req: a[2], Rem: a[3]}, nil
	default:
		return nil, EInval
	}
}

// Encode is the inverse of Decode.
func Encode(c Call) (Syscall, Args) {
	return c.Syscall(), c.Args()
}
