package assets

type Loader interface {
	Load(path string, assetType ResourceType, params interface{}) (*Resource, error)
	Unload(*Resource) error
}
