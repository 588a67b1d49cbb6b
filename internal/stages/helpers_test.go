package stages

import "github.com/elata-eeg/daqd/internal/control"

func commandUpdateParam(stageID, key string, value interface{}) control.Command {
	return control.Command{StageID: stageID, Kind: control.UpdateParam, Key: key, Value: value}
}
