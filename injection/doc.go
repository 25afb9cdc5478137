// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 injection 提供确定性的提示注入 / 越狱检测。

# 概述

本包维护一张有序、不可变的加权正则模式表（编译一次，进程内共享），
外加一组固定权重的可疑短语。检测是纯函数：无 I/O、不会失败、
对同一输入永远返回同一结果，适合作为 LLM 调用前的第一道快速防线。

# 算法

  - 归一化输入（折叠空白、统一弯引号）后逐条匹配模式表。
  - 每个命中的模式贡献其权重并累加到所属类别的命中计数；
    每个命中的可疑短语贡献固定权重 0.30。
  - Confidence = min(权重和, 1.0)；IsInjection = Confidence >= 阈值（默认 0.7）。
  - Category 取命中次数最多的类别，平局时按模式表中类别首次出现的
    顺序决定，保证稳定可复现。

# 取舍

加权规则表以牺牲对新颖措辞的召回率为代价，换取可解释、低延迟、
无模型依赖的确定性判定。语义级分类由 moderation 包的外部提供者承担。
*/
package injection
