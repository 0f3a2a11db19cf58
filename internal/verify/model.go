package verify

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OutputClassCount は出力テンソルの形状からクラス数（最後の次元）を返す
func OutputClassCount(dims []int64) (int, error) {
	if len(dims) == 0 {
		return 0, errors.New("出力テンソルの形状が空です")
	}
	n := dims[len(dims)-1]
	if n <= 0 {
		return 0, errors.Errorf("出力テンソルのクラス数が不定です: %v", dims)
	}
	return int(n), nil
}

// ModelClassCount はONNXモデルの最初の出力のクラス数を返す。
// libPath が空でなければ onnxruntime の共有ライブラリとして使う。
func ModelClassCount(modelPath, libPath string) (int, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return 0, errors.Wrap(err, "onnxruntimeの初期化に失敗")
		}
		defer func() { _ = ort.DestroyEnvironment() }()
	}
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return 0, errors.Wrapf(err, "モデル情報の取得に失敗: %q", modelPath)
	}
	if len(outputs) == 0 {
		return 0, errors.Errorf("モデルに出力がありません: %q", modelPath)
	}
	return OutputClassCount(outputs[0].Dimensions)
}

// CheckModel はモデルのクラス数とラベル数が一致するかを確認する
func CheckModel(modelPath, libPath string, numLabels int) ([]string, error) {
	n, err := ModelClassCount(modelPath, libPath)
	if err != nil {
		return nil, err
	}
	if n != numLabels {
		return []string{errors.Errorf("モデルの出力クラス数 %d がラベル数 %d と一致しません", n, numLabels).Error()}, nil
	}
	return nil, nil
}
