package csdn

type PageLocators struct {
	TitleInput     []string
	Editor         []string
	PublishButton  []string
	ConfirmButton  []string
	TagInput       []string
	SuccessMarker  []string
	LoggedInMarker []string
}

var Locators = PageLocators{
	TitleInput: []string{
		`input.article-bar__title`,
		`input[placeholder*='请输入文章标题']`,
	},
	// Markdown编辑器的CodeMirror容器优先，旧版textarea兜底
	Editor: []string{
		`div.editor__inner .cledit-section`,
		`div.cledit-section`,
		`pre.editor__inner`,
		`textarea[name='markdowncontent']`,
	},
	PublishButton: []string{
		`button.btn-publish`,
		`button:has-text('发布文章')`,
	},
	// 点发布后会弹出发布设置抽屉，里面还有一个确认按钮
	ConfirmButton: []string{
		`.modal__button-bar button:has-text('发布文章')`,
		`.el-dialog button:has-text('发布')`,
	},
	TagInput: []string{
		`.mark_selection_box input`,
		`input[placeholder*='请输入文字搜索']`,
	},
	SuccessMarker: []string{
		`.success-title`,
		`text=发布成功`,
	},
	LoggedInMarker: []string{
		`.toolbar-btn-loginfun img.csdn-profile-avatar`,
		`.hasAvatar`,
	},
}

func GetLocators() *PageLocators {
	return &Locators
}

type QRLoginLocators struct {
	SignInURL         string
	QRTab             []string
	QRImage           []string
	QRContainer       []string
	LoginArea         string
	Expired           string
	Refresh           string
	LoggedInSelectors []string
	PostLoginCookies  []string
}

var QRLogin = QRLoginLocators{
	SignInURL: "https://passport.csdn.net/login",
	QRTab: []string{
		`span:has-text('扫码登录')`,
		`.login-code-switch`,
	},
	QRImage: []string{
		`.login-code img`,
		`.qrscan-box img`,
	},
	QRContainer: []string{
		`.login-code`,
		`.qrscan-box`,
	},
	LoginArea: `.main-select`,
	Expired:   `.qrscan-mask`,
	Refresh:   `.qrscan-mask .refresh`,
	LoggedInSelectors: []string{
		`.toolbar-btn-loginfun img.csdn-profile-avatar`,
	},
	PostLoginCookies: []string{"UserToken", "UserName"},
}
