package zhihu

type PageLocators struct {
	TitleInput     []string
	Editor         []string
	PublishButton  []string
	ConfirmButton  []string
	TopicInput     []string
	SuccessMarker  []string
	LoggedInMarker []string
}

var Locators = PageLocators{
	TitleInput: []string{
		`textarea.Input[placeholder*='标题']`,
		`textarea[placeholder*='请输入标题']`,
	},
	// 稳定的Draft.js类名优先，通用contenteditable兜底
	Editor: []string{
		`div.public-DraftEditor-content`,
		`div.Editable-content[contenteditable="true"]`,
		`div[contenteditable="true"]`,
	},
	PublishButton: []string{
		`button.PublishPanel-stepTwoButton`,
		`button:has-text('发布')`,
	},
	ConfirmButton: []string{
		`.Modal button:has-text('确认发布')`,
		`.Modal button:has-text('确定')`,
	},
	TopicInput: []string{
		`.PublishPanel input[placeholder*='话题']`,
		`input[placeholder*='搜索话题']`,
	},
	SuccessMarker: []string{
		`.Post-Main .Post-Title`,
		`.ContentItem-title`,
	},
	LoggedInMarker: []string{
		`.AppHeader-profile`,
		`button[aria-label*='个人']`,
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
	SignInURL: "https://www.zhihu.com/signin",
	QRTab: []string{
		`div.SignFlow-tab:has-text('扫码登录')`,
		`div[role='button']:has-text('扫码')`,
	},
	QRImage: []string{
		`.Qrcode-img img`,
		`.Qrcode-content img`,
	},
	QRContainer: []string{
		`.Qrcode-img`,
		`.Qrcode-content`,
		`canvas`,
	},
	LoginArea: `.SignContainer-content`,
	Expired:   `.Qrcode-refresh`,
	Refresh:   `.Qrcode-refresh`,
	LoggedInSelectors: []string{
		`.AppHeader-profile`,
	},
	PostLoginCookies: []string{"z_c0"},
}
