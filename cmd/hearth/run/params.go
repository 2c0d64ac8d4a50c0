package run

const jsonFlag = "json"

var params = &runParams{}

type runParams struct {
	json bool
}
