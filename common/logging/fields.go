package logging

const (
	// FieldError can be used instead of Err(err) if you have only the error message string.
	FieldError = "err"

	FieldComponent = "component"

	FieldDuration = "duration"

	FieldContract  = "contract"
	FieldCaller    = "caller"
	FieldOrigin    = "origin"
	FieldFunction  = "function"
	FieldDepth     = "depth"
	FieldValue     = "value"
	FieldGasLimit  = "gasLimit"
	FieldGasUsed   = "gasUsed"
	FieldErrorCode = "errorCode"

	FieldCodeHash  = "codeHash"
	FieldCodeUnit  = "codeUnit"
	FieldSlotKey   = "slotKey"
	FieldEventName = "eventName"
	FieldEventSeq  = "eventSeq"

	FieldCommitSeq  = "commitSeq"
	FieldSnapshotId = "snapshotId"
	FieldDBPath     = "dbPath"
	FieldScenario   = "scenario"
)
