package config

type WorkerKeyStruct struct {
	PersistAnomaliesQueue   string
	PersistSubmissionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnomaliesQueue:   "persist_anomalies_queue",
	PersistSubmissionsQueue: "persist_submissions_queue",
}
