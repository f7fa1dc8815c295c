package config

type WorkerKeyStruct struct {
	PersistSubmissionsQueue string
	PersistViolationsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSubmissionsQueue: "persist_submissions_queue",
	PersistViolationsQueue:  "persist_violations_queue",
}
